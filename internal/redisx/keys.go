package redisx

import "time"

const (
	// Order status cache: order_status:{order_id} -> {"status":"..."}
	KeyOrderStatus = "order_status:%d"
)

var TTLStatusCache = 5 * time.Minute
