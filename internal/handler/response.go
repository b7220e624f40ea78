package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/efreitasn/pnlledger/internal/domain"
)

// WriteJSON sets the JSON content type, writes status and encodes data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // the status line is already out
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes {"error": code, "message": message} with status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorResponse{Error: code, Message: message})
}

// ParseJSON decodes a JSON request body into v, rejecting unknown fields.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("request body must be JSON with Content-Type: application/json")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed JSON body: %v", err)
	}
	return nil
}

// writeServiceError maps a service error to its HTTP status and error code.
// Unknown errors are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidFill):
		WriteError(w, http.StatusBadRequest, "invalid_fill", err.Error())
	case errors.Is(err, domain.ErrInvalidMethod):
		WriteError(w, http.StatusBadRequest, "invalid_method", err.Error())
	case errors.Is(err, domain.ErrInvalidSelection):
		WriteError(w, http.StatusBadRequest, "invalid_selection", err.Error())
	case errors.Is(err, domain.ErrInvalidTimestamp):
		WriteError(w, http.StatusBadRequest, "invalid_timestamp", err.Error())
	case errors.Is(err, domain.ErrLotNotFound):
		WriteError(w, http.StatusNotFound, "lot_not_found", err.Error())
	case errors.Is(err, domain.ErrUnorderedInput):
		WriteError(w, http.StatusConflict, "unordered_input", err.Error())
	case errors.Is(err, domain.ErrInsufficientInventory), errors.Is(err, domain.ErrNoOpenLots):
		WriteError(w, http.StatusConflict, "insufficient_inventory", err.Error())
	case errors.Is(err, domain.ErrOverConsumption):
		WriteError(w, http.StatusUnprocessableEntity, "over_consumption", err.Error())
	case errors.Is(err, domain.ErrSelectionRequired):
		WriteError(w, http.StatusUnprocessableEntity, "selection_required", err.Error())
	case errors.Is(err, domain.ErrUnclassifiedRecord):
		WriteError(w, http.StatusUnprocessableEntity, "unclassified_record", err.Error())
	case errors.Is(err, domain.ErrExchangeNotConfigured):
		WriteError(w, http.StatusServiceUnavailable, "exchange_not_configured", err.Error())
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
