package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MaxItemQuantity caps the quantity of a single line item.
const MaxItemQuantity = 99

// DefaultPaymentWindow is how long a PENDING order may await payment.
const DefaultPaymentWindow = 30 * time.Minute

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Status      string          `json:"status"`
	ImageURL    string          `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Address belongs to the address book; the engine only reads it to
// snapshot receiver fields onto a new order.
type Address struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	ReceiverName  string `json:"receiver_name"`
	ReceiverPhone string `json:"receiver_phone"`
	Province      string `json:"province"`
	City          string `json:"city"`
	District      string `json:"district"`
	Detail        string `json:"detail"`
}

// Receiver is the address snapshot copied onto an order at creation.
// Later edits to the address book never touch existing orders.
type Receiver struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Province string `json:"province"`
	City     string `json:"city"`
	District string `json:"district"`
	Detail   string `json:"detail"`
}

type Order struct {
	ID              int64           `json:"id"`
	OrderNo         string          `json:"order_no"`
	UserID          int64           `json:"user_id"`
	Items           []OrderItem     `json:"items"`
	Status          Status          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	ShippingCarrier string          `json:"shipping_carrier,omitempty"`
	TrackingNo      string          `json:"tracking_no,omitempty"`
	Receiver        Receiver        `json:"receiver"`
}

// OrderItem rows are created with their order and never change afterwards.
// Price and ProductSnapshot are captured under the product lock at purchase
// time so the order renders correctly even if the product is edited or
// deleted later.
type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	Price           decimal.Decimal `json:"price"`
	Quantity        int             `json:"quantity"`
	ProductSnapshot json.RawMessage `json:"product_snapshot,omitempty"`
}

// CartItem is a checkout input line carried over from the cart.
type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
