package order_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ecommarket/marketplace/internal/order"
)

func TestCanTransition_AllowedEdges(t *testing.T) {
	allowed := []struct {
		from order.Status
		to   order.Status
	}{
		{order.StatusPending, order.StatusConfirmed},
		{order.StatusPending, order.StatusCancelled},
		{order.StatusConfirmed, order.StatusProcessing},
		{order.StatusConfirmed, order.StatusCancelled},
		{order.StatusProcessing, order.StatusPacked},
		{order.StatusProcessing, order.StatusCancelled},
		{order.StatusPacked, order.StatusShipped},
		{order.StatusPacked, order.StatusCancelled},
		{order.StatusShipped, order.StatusOutForDelivery},
		{order.StatusShipped, order.StatusCancelled},
		{order.StatusOutForDelivery, order.StatusDelivered},
		{order.StatusDelivered, order.StatusReturned},
		{order.StatusReturned, order.StatusRefunded},
	}

	for _, tt := range allowed {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.True(t, order.CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransition_RejectedEdges(t *testing.T) {
	rejected := []struct {
		from order.Status
		to   order.Status
	}{
		{order.StatusPending, order.StatusShipped},
		{order.StatusPending, order.StatusDelivered},
		{order.StatusConfirmed, order.StatusPending},
		{order.StatusShipped, order.StatusPacked},
		{order.StatusOutForDelivery, order.StatusCancelled},
		{order.StatusDelivered, order.StatusRefunded},
		{order.StatusReturned, order.StatusDelivered},
	}

	for _, tt := range rejected {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.False(t, order.CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransition_TerminalStates(t *testing.T) {
	all := []order.Status{
		order.StatusPending, order.StatusConfirmed, order.StatusProcessing,
		order.StatusPacked, order.StatusShipped, order.StatusOutForDelivery,
		order.StatusDelivered, order.StatusCancelled, order.StatusReturned,
		order.StatusRefunded,
	}

	for _, terminal := range []order.Status{order.StatusCancelled, order.StatusRefunded} {
		for _, to := range all {
			assert.False(t, order.CanTransition(terminal, to),
				"terminal state %s must have no outgoing transition to %s", terminal, to)
		}
	}
}

func TestValidStatus(t *testing.T) {
	assert.True(t, order.ValidStatus(order.StatusOutForDelivery))
	assert.False(t, order.ValidStatus(order.Status("unknown")))
	assert.False(t, order.ValidStatus(order.Status("")))
}

func TestInvalidTransitionError_Message(t *testing.T) {
	err := &order.InvalidTransitionError{From: order.StatusPending, To: order.StatusShipped}
	assert.Equal(t, "Invalid status transition from pending to shipped", err.Error())
}
