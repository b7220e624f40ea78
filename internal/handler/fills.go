package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/service"
)

// FillHandler serves fill import, listing and exchange sync.
type FillHandler struct {
	svc    *service.LedgerService
	logger *slog.Logger
}

// NewFillHandler creates a FillHandler.
func NewFillHandler(svc *service.LedgerService, logger *slog.Logger) *FillHandler {
	return &FillHandler{svc: svc, logger: logger}
}

// Amounts are json.Number so both 0.1 and "0.1" decode without passing
// through float64.
type fillRequest struct {
	ID         string      `json:"id"`
	OrderID    string      `json:"order_id"`
	Asset      string      `json:"asset"`
	ProductID  string      `json:"product_id"`
	Side       string      `json:"side"`
	Quantity   json.Number `json:"quantity"`
	Price      json.Number `json:"price"`
	Fee        json.Number `json:"fee"`
	ExecutedAt string      `json:"executed_at"`
}

type importFillsRequest struct {
	Fills []fillRequest `json:"fills"`
}

type importFillsResponse struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
}

type fillResponse struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id,omitempty"`
	Asset      string          `json:"asset"`
	Side       string          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	ExecutedAt string          `json:"executed_at"`
}

// Import handles POST /fills.
func (h *FillHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importFillsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	inputs := make([]service.FillInput, 0, len(req.Fills))
	for i, f := range req.Fills {
		at, err := time.Parse(time.RFC3339Nano, f.ExecutedAt)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("fills[%d].executed_at must be an RFC 3339 timestamp", i))
			return
		}
		inputs = append(inputs, service.FillInput{
			ID:         f.ID,
			OrderID:    f.OrderID,
			Asset:      f.Asset,
			ProductID:  f.ProductID,
			Side:       f.Side,
			Quantity:   f.Quantity.String(),
			Price:      f.Price.String(),
			Fee:        f.Fee.String(),
			ExecutedAt: at,
		})
	}

	res, err := h.svc.ImportFills(r.Context(), inputs)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	status := http.StatusOK
	if res.Inserted > 0 {
		status = http.StatusCreated
	}
	WriteJSON(w, status, importFillsResponse{Received: res.Received, Inserted: res.Inserted})
}

// List handles GET /fills.
func (h *FillHandler) List(w http.ResponseWriter, r *http.Request) {
	fills, err := h.svc.Fills(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	resp := make([]fillResponse, len(fills))
	for i, f := range fills {
		resp[i] = toFillResponse(f)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"fills": resp})
}

// Sync handles POST /sync.
func (h *FillHandler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sync(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, importFillsResponse{Received: res.Received, Inserted: res.Inserted})
}

func toFillResponse(f domain.Fill) fillResponse {
	return fillResponse{
		ID:         f.ID,
		OrderID:    f.OrderID,
		Asset:      f.Asset,
		Side:       string(f.Side),
		Quantity:   f.Quantity,
		Price:      f.Price,
		Fee:        f.Fee,
		ExecutedAt: formatTime(f.ExecutedAt),
	}
}
