package order

import "fmt"

// allowedTransitions is the full lifecycle graph. cancelled and refunded
// are terminal.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusPacked:    true,
		StatusCancelled: true,
	},
	StatusPacked: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusOutForDelivery: true,
		StatusCancelled:      true,
	},
	StatusOutForDelivery: {
		StatusDelivered: true,
	},
	StatusDelivered: {
		StatusReturned: true,
	},
	StatusReturned: {
		StatusRefunded: true,
	},
	StatusCancelled: {},
	StatusRefunded:  {},
}

func ValidStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// InvalidTransitionError is returned when a status change is requested
// outside the lifecycle graph. The order is left unchanged.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("Invalid status transition from %s to %s", e.From, e.To)
}
