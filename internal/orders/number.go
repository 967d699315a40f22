package orders

import (
	"time"

	"github.com/google/uuid"
)

const orderNoTimeLayout = "20060102150405"

// NewOrderNo builds a human-presentable order number: a second-precision
// timestamp prefix (sortable) plus a 6-char random suffix. The unique
// constraint on orders.order_no is the backstop for same-second collisions.
func NewOrderNo(now time.Time) string {
	return now.Format(orderNoTimeLayout) + uuid.NewString()[:6]
}
