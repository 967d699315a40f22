package orders

import (
	"context"
	"time"
)

// Clock is injected so tests can simulate elapsed time.
type Clock func() time.Time

type Page struct {
	Number int // 1-based
	Size   int
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

type OrderPage struct {
	Orders []Order `json:"orders"`
	Total  int64   `json:"total"`
	Number int     `json:"page"`
	Size   int     `json:"size"`
}

// SearchFilter narrows an owner's order listing. Zero values mean
// "no constraint".
type SearchFilter struct {
	OrderNo string
	Status  Status
	From    time.Time
	To      time.Time
}

// Tx is the mutation surface available inside one atomic unit. It carries
// both order persistence and the stock ledger so a creation or transition
// commits together with the stock rows it touched, or not at all.
type Tx interface {
	// GetAddress resolves a saved address for the receiver snapshot.
	GetAddress(ctx context.Context, id int64) (*Address, error)

	// LockProduct acquires the product's exclusive row lock for the rest
	// of the transaction and returns the authoritative row.
	LockProduct(ctx context.Context, id int64) (*Product, error)
	// DecrementStock must run under the lock from LockProduct; it fails
	// with ErrInsufficientStock rather than driving stock negative.
	DecrementStock(ctx context.Context, id int64, qty int) error
	IncrementStock(ctx context.Context, id int64, qty int) error

	// InsertOrder persists the order and all its items, assigning IDs.
	InsertOrder(ctx context.Context, o *Order) error
	// GetOrderForUpdate locks the order row and returns it with items.
	GetOrderForUpdate(ctx context.Context, id int64) (*Order, error)
	// UpdateOrder writes the status and transition fields, guarded by the
	// expected prior status.
	UpdateOrder(ctx context.Context, o *Order, from Status) error
}

// Store is the durable order/stock store. WithinTx runs fn inside one
// transaction: commit on nil, full rollback on error or panic, so a failure
// after stock was decremented leaves nothing behind.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64, p Page) (*OrderPage, error)
	Search(ctx context.Context, userID int64, f SearchFilter, p Page) (*OrderPage, error)
	// ExpiredPending returns IDs of PENDING orders whose payment window
	// elapsed before now, oldest first, at most limit.
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]int64, error)
}
