package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "teashop/internal/kafka"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventOrderShipped   = "OrderShipped"
	EventOrderCompleted = "OrderCompleted"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_no
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     int64     `json:"order_id"`
	OrderNo     string    `json:"order_no"`
	UserID      int64     `json:"user_id"`
	Items       []ItemQty `json:"items"`
	TotalAmount string    `json:"total_amount"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type OrderTransitionPayload struct {
	OrderID int64  `json:"order_id"`
	OrderNo string `json:"order_no"`
	UserID  int64  `json:"user_id"`
	Status  string `json:"status"`
}

// Publisher emits lifecycle events after the owning transaction committed.
// The store stays the source of truth: a lost event is acceptable, a
// published event for a rolled-back change is not. Nil-safe so the engine
// can run without a broker (tests, local).
type Publisher struct {
	Producer *kafkax.Producer
	Service  string
}

func (p *Publisher) OrderCreated(o *Order) {
	if p == nil {
		return
	}
	items := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	p.emit(EventOrderCreated, TopicOrderCreated, o.OrderNo, OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNo:     o.OrderNo,
		UserID:      o.UserID,
		Items:       items,
		TotalAmount: o.TotalAmount.String(),
		ExpiresAt:   o.ExpiresAt,
	})
}

func (p *Publisher) OrderTransition(o *Order, eventType, topic string) {
	if p == nil {
		return
	}
	p.emit(eventType, topic, o.OrderNo, OrderTransitionPayload{
		OrderID: o.ID,
		OrderNo: o.OrderNo,
		UserID:  o.UserID,
		Status:  string(o.Status),
	})
}

func (p *Publisher) emit(eventType, topic, orderNo string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		CorrelationID: orderNo,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Producer.Publish(topic, PartitionKey(orderNo), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
