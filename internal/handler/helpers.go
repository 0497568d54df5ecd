package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/ecommarket/marketplace/internal/catalog"
	"github.com/ecommarket/marketplace/internal/order"
	"github.com/ecommarket/marketplace/internal/store"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondWithMessage uses the {"message": ...} error envelope the
// original API exposed; clients depend on that key.
func respondWithMessage(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"message": message})
}

func mapErrorToStatusCode(err error) int {
	var invalidTransition *order.InvalidTransitionError
	var insufficientStock *order.InsufficientStockError

	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrProductGone),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, store.ErrStoreNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidPaymentStatus):
		return http.StatusBadRequest
	case errors.As(err, &invalidTransition):
		return http.StatusBadRequest
	case errors.As(err, &insufficientStock),
		errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func formatValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(validationErrors))
	for _, fieldError := range validationErrors {
		details[fieldError.Field()] = fieldError.Tag()
	}
	return details
}
