package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderShipped   = "order.shipped"
	TopicOrderCompleted = "order.completed"
	TopicOrderCancelled = "order.cancelled"
)

// Partition key = order_no so all events of one order keep their order.
func PartitionKey(orderNo string) []byte { return []byte(orderNo) }
