package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine orchestrates the order lifecycle: checkout, the status state
// machine, and stock restoration on cancellation/expiration. Every status
// change goes through checkTransition; nothing else assigns Order.Status.
type Engine struct {
	Store  Store
	Events *Publisher // optional; nil disables event publishing
	Log    *zap.Logger
	Clock  Clock         // defaults to time.Now
	Window time.Duration // defaults to DefaultPaymentWindow
}

func NewEngine(store Store, log *zap.Logger) *Engine {
	return &Engine{Store: store, Log: log}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Engine) window() time.Duration {
	if e.Window > 0 {
		return e.Window
	}
	return DefaultPaymentWindow
}

func (e *Engine) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// Checkout turns a cart snapshot into a PENDING order. Product rows are
// locked in ascending product-ID order so two checkouts with overlapping
// items can never deadlock; stock decrements, the order row and its items
// all commit as one unit.
func (e *Engine) Checkout(ctx context.Context, userID, addressID int64, items []CartItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, it := range items {
		if it.Quantity < 1 || it.Quantity > MaxItemQuantity {
			return nil, fmt.Errorf("%w: product %d quantity %d", ErrInvalidQuantity, it.ProductID, it.Quantity)
		}
	}
	sorted := make([]CartItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	var order *Order
	err := e.Store.WithinTx(ctx, func(tx Tx) error {
		addr, err := tx.GetAddress(ctx, addressID)
		if err != nil {
			return err
		}
		if addr.UserID != userID {
			return fmt.Errorf("%w: address %d", ErrAddressNotFound, addressID)
		}

		now := e.now()
		o := &Order{
			OrderNo:   NewOrderNo(now),
			UserID:    userID,
			Status:    StatusPending,
			CreatedAt: now,
			ExpiresAt: now.Add(e.window()),
			Receiver: Receiver{
				Name:     addr.ReceiverName,
				Phone:    addr.ReceiverPhone,
				Province: addr.Province,
				City:     addr.City,
				District: addr.District,
				Detail:   addr.Detail,
			},
		}

		total := decimal.Zero
		for _, it := range sorted {
			p, err := tx.LockProduct(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if p.Stock < it.Quantity {
				return fmt.Errorf("%w: product %d has %d, need %d",
					ErrInsufficientStock, p.ID, p.Stock, it.Quantity)
			}
			if err := tx.DecrementStock(ctx, p.ID, it.Quantity); err != nil {
				return err
			}
			snap, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("snapshot product %d: %w", p.ID, err)
			}
			o.Items = append(o.Items, OrderItem{
				ProductID:       p.ID,
				Price:           p.Price,
				Quantity:        it.Quantity,
				ProductSnapshot: snap,
			})
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		o.TotalAmount = total

		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger().Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_no", order.OrderNo),
		zap.Int64("user_id", userID),
		zap.String("total", order.TotalAmount.String()),
	)
	e.Events.OrderCreated(order)
	return order, nil
}

// Pay moves a PENDING order to PAID. An order whose payment window already
// elapsed is auto-cancelled (stock restored) in the same transaction and the
// call fails with ErrOrderExpired so the client can refresh.
func (e *Engine) Pay(ctx context.Context, userID, orderID int64, method string) (*Order, error) {
	var out *Order
	var expired bool
	err := e.Store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrNotOwner
		}
		if err := checkTransition(o.Status, StatusPaid); err != nil {
			return err
		}
		now := e.now()
		if now.After(o.ExpiresAt) {
			if err := restoreStock(ctx, tx, o); err != nil {
				return err
			}
			from := o.Status
			o.Status = StatusCancelled
			if err := tx.UpdateOrder(ctx, o, from); err != nil {
				return err
			}
			expired = true
			out = o
			return nil
		}
		from := o.Status
		o.Status = StatusPaid
		o.PaidAt = &now
		o.PaymentMethod = method
		if err := tx.UpdateOrder(ctx, o, from); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		e.logger().Info("payment attempt on expired order, auto-cancelled",
			zap.Int64("order_id", out.ID), zap.String("order_no", out.OrderNo))
		e.Events.OrderTransition(out, EventOrderCancelled, TopicOrderCancelled)
		return nil, fmt.Errorf("%w: order %s", ErrOrderExpired, out.OrderNo)
	}
	e.logger().Info("order paid",
		zap.Int64("order_id", out.ID), zap.String("method", method))
	e.Events.OrderTransition(out, EventOrderPaid, TopicOrderPaid)
	return out, nil
}

// Cancel is the owner's explicit cancellation of a PENDING order. Stock is
// restored under the same per-product locks used by checkout, so a racing
// purchase of the same product cannot observe a stale count.
func (e *Engine) Cancel(ctx context.Context, userID, orderID int64) (*Order, error) {
	o, err := e.cancel(ctx, orderID, &userID)
	if err != nil {
		return nil, err
	}
	e.logger().Info("order cancelled",
		zap.Int64("order_id", o.ID), zap.String("order_no", o.OrderNo))
	e.Events.OrderTransition(o, EventOrderCancelled, TopicOrderCancelled)
	return o, nil
}

// cancel applies PENDING -> CANCELLED with stock restoration. A nil owner
// skips the ownership check (expiration sweep, admin override).
func (e *Engine) cancel(ctx context.Context, orderID int64, owner *int64) (*Order, error) {
	var out *Order
	err := e.Store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if owner != nil && o.UserID != *owner {
			return ErrNotOwner
		}
		if err := checkTransition(o.Status, StatusCancelled); err != nil {
			return err
		}
		if err := restoreStock(ctx, tx, o); err != nil {
			return err
		}
		from := o.Status
		o.Status = StatusCancelled
		if err := tx.UpdateOrder(ctx, o, from); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ship is an operator action: it bypasses the ownership check but not the
// transition table.
func (e *Engine) Ship(ctx context.Context, orderID int64, carrier, trackingNo string) (*Order, error) {
	var out *Order
	err := e.Store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(o.Status, StatusShipped); err != nil {
			return err
		}
		from := o.Status
		o.Status = StatusShipped
		o.ShippingCarrier = carrier
		o.TrackingNo = trackingNo
		if err := tx.UpdateOrder(ctx, o, from); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger().Info("order shipped",
		zap.Int64("order_id", out.ID), zap.String("carrier", carrier), zap.String("tracking_no", trackingNo))
	e.Events.OrderTransition(out, EventOrderShipped, TopicOrderShipped)
	return out, nil
}

// Complete confirms receipt: SHIPPED -> COMPLETED, owner only.
func (e *Engine) Complete(ctx context.Context, userID, orderID int64) (*Order, error) {
	var out *Order
	err := e.Store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrNotOwner
		}
		if err := checkTransition(o.Status, StatusCompleted); err != nil {
			return err
		}
		from := o.Status
		o.Status = StatusCompleted
		if err := tx.UpdateOrder(ctx, o, from); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger().Info("order completed", zap.Int64("order_id", out.ID))
	e.Events.OrderTransition(out, EventOrderCompleted, TopicOrderCompleted)
	return out, nil
}

// ForceStatus is the administrative override. It bypasses ownership but
// still consults the transition table, and restores stock when it cancels
// a pending order.
func (e *Engine) ForceStatus(ctx context.Context, orderID int64, to Status) (*Order, error) {
	if to == StatusCancelled {
		o, err := e.cancel(ctx, orderID, nil)
		if err != nil {
			return nil, err
		}
		e.Events.OrderTransition(o, EventOrderCancelled, TopicOrderCancelled)
		return o, nil
	}
	var out *Order
	err := e.Store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(o.Status, to); err != nil {
			return err
		}
		from := o.Status
		o.Status = to
		if to == StatusPaid && o.PaidAt == nil {
			now := e.now()
			o.PaidAt = &now
		}
		if err := tx.UpdateOrder(ctx, o, from); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger().Info("order status forced",
		zap.Int64("order_id", out.ID), zap.String("status", string(to)))
	return out, nil
}

// SweepExpired cancels up to limit expired PENDING orders, restoring their
// stock. Individual failures are logged and skipped so one bad order does
// not stall the sweep. Returns the number cancelled.
func (e *Engine) SweepExpired(ctx context.Context, limit int) (int, error) {
	ids, err := e.Store.ExpiredPending(ctx, e.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("scan expired orders: %w", err)
	}
	n := 0
	for _, id := range ids {
		o, err := e.cancel(ctx, id, nil)
		if err != nil {
			// Raced with a pay/cancel that won: nothing to do.
			e.logger().Warn("expired order sweep skipped",
				zap.Int64("order_id", id), zap.Error(err))
			continue
		}
		e.Events.OrderTransition(o, EventOrderCancelled, TopicOrderCancelled)
		n++
	}
	if n > 0 {
		e.logger().Info("expired orders cancelled", zap.Int("count", n))
	}
	return n, nil
}

func (e *Engine) Get(ctx context.Context, orderID int64) (*Order, error) {
	return e.Store.GetOrder(ctx, orderID)
}

func (e *Engine) ListByUser(ctx context.Context, userID int64, p Page) (*OrderPage, error) {
	return e.Store.ListByUser(ctx, userID, p)
}

func (e *Engine) Search(ctx context.Context, userID int64, f SearchFilter, p Page) (*OrderPage, error) {
	return e.Store.Search(ctx, userID, f, p)
}

// restoreStock returns every item's quantity to its product, locking rows
// in ascending product-ID order like checkout does.
func restoreStock(ctx context.Context, tx Tx, o *Order) error {
	items := make([]OrderItem, len(o.Items))
	copy(items, o.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	for _, it := range items {
		if _, err := tx.LockProduct(ctx, it.ProductID); err != nil {
			return fmt.Errorf("restore stock for product %d: %w", it.ProductID, err)
		}
		if err := tx.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("restore stock for product %d: %w", it.ProductID, err)
		}
	}
	return nil
}
