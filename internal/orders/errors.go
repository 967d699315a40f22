package orders

// BusinessError is a recoverable rule violation surfaced to the caller with
// a stable machine code. Sentinels below are compared with errors.Is; call
// sites wrap them with fmt.Errorf("%w: ...") to attach detail.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string { return e.Message }

var (
	ErrEmptyCart         = &BusinessError{Code: "EMPTY_CART", Message: "cart is empty"}
	ErrInvalidQuantity   = &BusinessError{Code: "INVALID_QUANTITY", Message: "item quantity out of range"}
	ErrAddressNotFound   = &BusinessError{Code: "ADDRESS_NOT_FOUND", Message: "address not found"}
	ErrProductNotFound   = &BusinessError{Code: "PRODUCT_NOT_FOUND", Message: "product not found"}
	ErrOrderNotFound     = &BusinessError{Code: "ORDER_NOT_FOUND", Message: "order not found"}
	ErrInsufficientStock = &BusinessError{Code: "INSUFFICIENT_STOCK", Message: "insufficient stock"}
	ErrInvalidTransition = &BusinessError{Code: "INVALID_STATE", Message: "invalid order state transition"}
	ErrOrderExpired      = &BusinessError{Code: "ORDER_EXPIRED", Message: "order expired"}
	ErrNotOwner          = &BusinessError{Code: "FORBIDDEN", Message: "not the order owner"}
)
