package events

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

// Routing keys for the order event stream.
const (
	RoutingOrderCreated        = "order.created"
	RoutingOrderStatusChanged  = "order.status_changed"
	RoutingOrderPaymentUpdated = "order.payment_updated"
)

// OrderEvent is the wire shape published to the topic exchange for every
// order lifecycle change.
type OrderEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	BuyerID       uuid.UUID `json:"buyerId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus,omitempty"`
	TotalAmount   float64   `json:"totalAmount"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event OrderEvent) error
	Close()
}
