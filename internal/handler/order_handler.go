package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ecommarket/marketplace/internal/auth"
	"github.com/ecommarket/marketplace/internal/order"
)

// OrderHandler exposes the order core over HTTP. All routes require an
// authenticated principal; role checks are per-route.
type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Route("/orders", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Post("/", h.handleCreateOrder)
		r.Get("/my-orders", h.handleMyOrders)
		r.With(auth.RequireRole(auth.RoleSeller)).Get("/seller", h.handleSellerOrders)
		r.Get("/{id}", h.handleGetOrder)
		r.With(auth.RequireRole(auth.RoleAdmin, auth.RoleSeller)).Put("/{id}/status", h.handleUpdateStatus)
		r.Put("/{id}/payment", h.handleUpdatePayment)
	})
}

func (h *OrderHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithMessage(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Message: "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithMessage(w, http.StatusInternalServerError, "Internal validation error")
		}
		return false
	}

	return true
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateOrderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if len(req.Items) == 0 {
		respondWithMessage(w, http.StatusBadRequest, "No order items")
		return
	}

	input := order.PlacementInput{
		Items: make([]order.PlacementItem, 0, len(req.Items)),
		ShippingAddress: order.ShippingAddress{
			Street:  req.ShippingAddress.Street,
			City:    req.ShippingAddress.City,
			State:   req.ShippingAddress.State,
			ZipCode: req.ShippingAddress.ZipCode,
			Country: req.ShippingAddress.Country,
		},
		PaymentMethod: req.PaymentMethod,
	}
	for _, item := range req.Items {
		productID, err := uuid.FromString(item.Product)
		if err != nil {
			respondWithMessage(w, http.StatusBadRequest, "Invalid product id")
			return
		}
		input.Items = append(input.Items, order.PlacementItem{ProductID: productID, Quantity: item.Quantity})
	}

	created, err := h.svc.PlaceOrder(r.Context(), principal.UserID, input)
	if err != nil {
		log.Warn().Err(err).Stringer("buyer_id", principal.UserID).Msg("Failed to place order")
		respondWithMessage(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithMessage(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	o, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		if !errors.Is(err, order.ErrOrderNotFound) {
			log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to get order")
		}
		respondWithMessage(w, mapErrorToStatusCode(err), "Order not found")
		return
	}

	if o.BuyerID != principal.UserID {
		respondWithMessage(w, http.StatusForbidden, "Not authorized to view this order")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	status := order.Status(r.URL.Query().Get("status"))
	orders, err := h.svc.OrdersByBuyer(r.Context(), principal.UserID, status)
	if err != nil {
		if errors.Is(err, order.ErrInvalidStatus) {
			respondWithMessage(w, http.StatusBadRequest, "Invalid status value")
			return
		}
		log.Error().Err(err).Stringer("buyer_id", principal.UserID).Msg("Failed to list buyer orders")
		respondWithMessage(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithMessage(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var req UpdateStatusRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.svc.TransitionStatus(r.Context(), orderID, order.Status(req.Status), req.Note, req.TrackingNumber)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Str("status", req.Status).Msg("Failed to update order status")
		respondWithMessage(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithMessage(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var req UpdatePaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.svc.UpdatePaymentStatus(r.Context(), orderID, order.PaymentStatus(req.PaymentStatus), req.Note)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Str("payment_status", req.PaymentStatus).Msg("Failed to update payment status")
		respondWithMessage(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleSellerOrders(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	status := order.Status(r.URL.Query().Get("status"))
	result, err := h.svc.SellerOrders(r.Context(), principal.UserID, status)
	if err != nil {
		code := mapErrorToStatusCode(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Stringer("seller_id", principal.UserID).Msg("Failed to fetch seller orders")
			respondWithJSON(w, code, map[string]interface{}{
				"success": false,
				"message": "Error fetching seller orders",
			})
			return
		}
		respondWithJSON(w, code, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, SellerOrdersResponse{
		Success:   true,
		Count:     len(result.Orders),
		Analytics: result.Analytics,
		Data:      result.Orders,
	})
}
