package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusPacked         Status = "packed"
	StatusShipped        Status = "shipped"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusReturned       Status = "returned"
	StatusRefunded       Status = "refunded"
)

func (s Status) String() string {
	return string(s)
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type ShippingAddress struct {
	Street  string `json:"street" db:"shipping_street"`
	City    string `json:"city" db:"shipping_city"`
	State   string `json:"state" db:"shipping_state"`
	ZipCode string `json:"zipCode" db:"shipping_zip_code"`
	Country string `json:"country" db:"shipping_country"`
}

// Item is a single order line. UnitPrice is snapshotted from the product
// at placement time and never follows later catalog price changes.
type Item struct {
	ProductID uuid.UUID `json:"product" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UnitPrice float64   `json:"price" db:"unit_price"`
}

type StatusEntry struct {
	Status    Status    `json:"status" db:"status"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
	Note      string    `json:"note,omitempty" db:"note"`
}

// Order is the central entity. Line items and the shipping address are
// immutable after creation; the only mutations are status and payment
// transitions, which always append to StatusHistory.
type Order struct {
	ID                    uuid.UUID       `json:"id"`
	BuyerID               uuid.UUID       `json:"user"`
	Items                 []Item          `json:"items"`
	TotalAmount           float64         `json:"totalAmount"`
	Status                Status          `json:"status"`
	StatusHistory         []StatusEntry   `json:"statusHistory"`
	PaymentStatus         PaymentStatus   `json:"paymentStatus"`
	PaymentMethod         string          `json:"paymentMethod"`
	ShippingAddress       ShippingAddress `json:"shippingAddress"`
	TrackingNumber        string          `json:"trackingNumber,omitempty"`
	EstimatedDeliveryDate *time.Time      `json:"estimatedDeliveryDate,omitempty"`
	ActualDeliveryDate    *time.Time      `json:"actualDeliveryDate,omitempty"`
	CancellationReason    string          `json:"cancellationReason,omitempty"`
	ReturnReason          string          `json:"returnReason,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// TotalOf computes the order total from its line items. Recorded totals
// must always equal this sum; clients never supply totals.
func TotalOf(items []Item) float64 {
	total := 0.0
	for _, it := range items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}

// SellerOrder is a store-scoped projection of an order: Items holds only
// the line items belonging to one store, and StoreTotal sums just that
// subset rather than the order's global TotalAmount.
type SellerOrder struct {
	Order
	Items      []Item  `json:"items"`
	StoreTotal float64 `json:"storeTotal"`
}
