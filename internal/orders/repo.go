package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore implements Store on Postgres. Row locks come from
// SELECT ... FOR UPDATE inside the enclosing transaction; they are released
// on commit or rollback, never held across a network boundary.
type PgStore struct {
	DB *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore { return &PgStore{DB: db} }

func (s *PgStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetAddress(ctx context.Context, id int64) (*Address, error) {
	var a Address
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, receiver_name, receiver_phone, province, city, district, detail
		FROM addresses WHERE id = $1`, id,
	).Scan(&a.ID, &a.UserID, &a.ReceiverName, &a.ReceiverPhone, &a.Province, &a.City, &a.District, &a.Detail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: address %d", ErrAddressNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) LockProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, description, price, stock, status, image_url, created_at, updated_at
		FROM products WHERE id = $1 FOR UPDATE`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Status, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, id int64, qty int) error {
	// Guarded update: the stock >= qty predicate keeps the column from ever
	// going negative even if a caller skipped the lock.
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: product %d", ErrInsufficientStock, id)
	}
	return nil
}

func (t *pgTx) IncrementStock(ctx context.Context, id int64, qty int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: product %d", ErrProductNotFound, id)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (
			order_no, user_id, status, total_amount, created_at, expires_at,
			receiver_name, receiver_phone, receiver_province, receiver_city,
			receiver_district, receiver_detail
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		o.OrderNo, o.UserID, o.Status, o.TotalAmount, o.CreatedAt, o.ExpiresAt,
		o.Receiver.Name, o.Receiver.Phone, o.Receiver.Province, o.Receiver.City,
		o.Receiver.District, o.Receiver.Detail,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := t.tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, price, quantity, product_snapshot)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id`,
			it.OrderID, it.ProductID, it.Price, it.Quantity, it.ProductSnapshot,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

const orderColumns = `
	id, order_no, user_id, status, total_amount, created_at, expires_at,
	paid_at, payment_method, shipping_carrier, tracking_no,
	receiver_name, receiver_phone, receiver_province, receiver_city,
	receiver_district, receiver_detail`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNo, &o.UserID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.ExpiresAt,
		&o.PaidAt, &o.PaymentMethod, &o.ShippingCarrier, &o.TrackingNo,
		&o.Receiver.Name, &o.Receiver.Phone, &o.Receiver.Province, &o.Receiver.City,
		&o.Receiver.District, &o.Receiver.Detail,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func loadItems(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, o *Order) error {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, price, quantity, product_snapshot
		FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Price, &it.Quantity, &it.ProductSnapshot); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, t.tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *Order, from Status) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET
			status = $2, paid_at = $3, payment_method = $4,
			shipping_carrier = $5, tracking_no = $6
		WHERE id = $1 AND status = $7`,
		o.ID, o.Status, o.PaidAt, o.PaymentMethod, o.ShippingCarrier, o.TrackingNo, from)
	if err != nil {
		return err
	}
	// The caller holds the row lock, so a miss means the expected status
	// was wrong, not a race.
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %d not in %s", ErrInvalidTransition, o.ID, from)
	}
	return nil
}

func (s *PgStore) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, s.DB, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PgStore) ListByUser(ctx context.Context, userID int64, p Page) (*OrderPage, error) {
	return s.Search(ctx, userID, SearchFilter{}, p)
}

func (s *PgStore) Search(ctx context.Context, userID int64, f SearchFilter, p Page) (*OrderPage, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.OrderNo != "" {
		add("order_no = $%d", f.OrderNo)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	cond := strings.Join(where, " AND ")

	out := &OrderPage{Number: p.Number, Size: p.Size}
	if err := s.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE `+cond, args...).Scan(&out.Total); err != nil {
		return nil, err
	}

	args = append(args, p.Size, p.Offset())
	rows, err := s.DB.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out.Orders = append(out.Orders, *o)
	}
	return out, rows.Err()
}

func (s *PgStore) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at LIMIT $3`, StatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
