package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemStore is an in-memory Store for tests and local runs. One mutex
// serializes transactions (coarse but correct, like a single-row-locked
// store collapsed to one lock); each transaction works on a deep copy of
// the state, so an error rolls back by discarding the copy.
type MemStore struct {
	mu sync.Mutex

	products  map[int64]*Product
	addresses map[int64]*Address
	orders    map[int64]*Order

	nextOrderID int64
	nextItemID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:  map[int64]*Product{},
		addresses: map[int64]*Address{},
		orders:    map[int64]*Order{},
	}
}

func (s *MemStore) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

func (s *MemStore) AddAddress(a Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[a.ID] = &a
}

// Product returns a copy of the stored product.
func (s *MemStore) Product(id int64) (Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, false
	}
	return *p, true
}

// SetPrice mutates the catalog price outside any order transaction, the way
// a catalog edit would.
func (s *MemStore) SetPrice(id int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.Price = price
	}
}

func (s *MemStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:    s,
		products: cloneProducts(s.products),
		orders:   cloneOrders(s.orders),
		nextID:   s.nextOrderID,
		nextItem: s.nextItemID,
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.products = tx.products
	s.orders = tx.orders
	s.nextOrderID = tx.nextID
	s.nextItemID = tx.nextItem
	return nil
}

type memTx struct {
	store    *MemStore
	products map[int64]*Product
	orders   map[int64]*Order
	nextID   int64
	nextItem int64
}

func (t *memTx) GetAddress(ctx context.Context, id int64) (*Address, error) {
	a, ok := t.store.addresses[id]
	if !ok {
		return nil, fmt.Errorf("%w: address %d", ErrAddressNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) LockProduct(ctx context.Context, id int64) (*Product, error) {
	p, ok := t.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", ErrProductNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) DecrementStock(ctx context.Context, id int64, qty int) error {
	p, ok := t.products[id]
	if !ok {
		return fmt.Errorf("%w: product %d", ErrProductNotFound, id)
	}
	if p.Stock < qty {
		return fmt.Errorf("%w: product %d", ErrInsufficientStock, id)
	}
	p.Stock -= qty
	return nil
}

func (t *memTx) IncrementStock(ctx context.Context, id int64, qty int) error {
	p, ok := t.products[id]
	if !ok {
		return fmt.Errorf("%w: product %d", ErrProductNotFound, id)
	}
	p.Stock += qty
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *Order) error {
	t.nextID++
	o.ID = t.nextID
	for i := range o.Items {
		t.nextItem++
		o.Items[i].ID = t.nextItem
		o.Items[i].OrderID = o.ID
	}
	cp := cloneOrder(o)
	t.orders[o.ID] = cp
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", ErrOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *Order, from Status) error {
	cur, ok := t.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: order %d", ErrOrderNotFound, o.ID)
	}
	if cur.Status != from {
		return fmt.Errorf("%w: order %d not in %s", ErrInvalidTransition, o.ID, from)
	}
	t.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *MemStore) GetOrder(ctx context.Context, id int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", ErrOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (s *MemStore) ListByUser(ctx context.Context, userID int64, p Page) (*OrderPage, error) {
	return s.Search(ctx, userID, SearchFilter{}, p)
}

func (s *MemStore) Search(ctx context.Context, userID int64, f SearchFilter, p Page) (*OrderPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Order
	for _, o := range s.orders {
		if o.UserID != userID {
			continue
		}
		if f.OrderNo != "" && o.OrderNo != f.OrderNo {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && o.CreatedAt.After(f.To) {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	out := &OrderPage{Total: int64(len(matched)), Number: p.Number, Size: p.Size}
	start := p.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + p.Size
	if p.Size <= 0 || end > len(matched) {
		end = len(matched)
	}
	for _, o := range matched[start:end] {
		out.Orders = append(out.Orders, *cloneOrder(o))
	}
	return out, nil
}

func (s *MemStore) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, o := range s.orders {
		if o.Status == StatusPending && o.ExpiresAt.Before(now) {
			ids = append(ids, o.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func cloneProducts(in map[int64]*Product) map[int64]*Product {
	out := make(map[int64]*Product, len(in))
	for k, v := range in {
		cp := *v
		out[k] = &cp
	}
	return out
}

func cloneOrders(in map[int64]*Order) map[int64]*Order {
	out := make(map[int64]*Order, len(in))
	for k, v := range in {
		out[k] = cloneOrder(v)
	}
	return out
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = make([]OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}
