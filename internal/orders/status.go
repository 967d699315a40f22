package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true},
	StatusShipped:   {StatusCompleted: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no transition leads out of s.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPaid, StatusShipped, StatusCompleted, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// checkTransition is the single gate every status change goes through.
func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
