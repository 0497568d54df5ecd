package handler

import (
	"github.com/ecommarket/marketplace/internal/order"
)

type OrderItemRequest struct {
	Product  string `json:"product" validate:"required,uuid4"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type ShippingAddressRequest struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zipCode" validate:"required"`
	Country string `json:"country" validate:"required"`
}

// CreateOrderRequest deliberately has no total field: totals are always
// recomputed server-side from the priced line items.
type CreateOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" validate:"dive"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress" validate:"required"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required"`
}

type UpdateStatusRequest struct {
	Status         string `json:"status" validate:"required"`
	Note           string `json:"note"`
	TrackingNumber string `json:"trackingNumber"`
}

type UpdatePaymentRequest struct {
	PaymentStatus string `json:"paymentStatus" validate:"required"`
	Note          string `json:"note"`
}

type SellerOrdersResponse struct {
	Success   bool                `json:"success"`
	Count     int                 `json:"count"`
	Analytics order.Analytics     `json:"analytics"`
	Data      []order.SellerOrder `json:"data"`
}

type ValidationErrorResponse struct {
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}
