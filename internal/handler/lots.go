package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/service"
)

// LotHandler serves open lots, closed-lot records and specific-ID
// selections.
type LotHandler struct {
	svc    *service.LedgerService
	logger *slog.Logger
}

// NewLotHandler creates a LotHandler.
func NewLotHandler(svc *service.LedgerService, logger *slog.Logger) *LotHandler {
	return &LotHandler{svc: svc, logger: logger}
}

type selectionRequest struct {
	LotID    string      `json:"lot_id"`
	Quantity json.Number `json:"quantity"`
}

type saveSelectionsRequest struct {
	SellFillID string             `json:"sell_fill_id"`
	Selections []selectionRequest `json:"selections"`
}

type lotResponse struct {
	ID                string          `json:"lot_id"`
	Asset             string          `json:"asset"`
	OriginalQuantity  decimal.Decimal `json:"original_quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	RemainingCost     decimal.Decimal `json:"remaining_cost"`
	AcquiredAt        string          `json:"acquired_at"`
}

type positionResponse struct {
	Asset            string          `json:"asset"`
	Quantity         decimal.Decimal `json:"quantity"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	AverageCost      decimal.Decimal `json:"average_cost"`
	LotCount         int             `json:"lot_count"`
	OldestAcquiredAt string          `json:"oldest_acquired_at"`
}

type openLotsResponse struct {
	Method    string                   `json:"cost_basis_method"`
	Positions []positionResponse       `json:"positions"`
	Lots      map[string][]lotResponse `json:"lots"`
}

type closedLotResponse struct {
	ID                string          `json:"id"`
	SellFillID        string          `json:"sell_fill_id"`
	LotID             string          `json:"lot_id"`
	Asset             string          `json:"asset"`
	Quantity          decimal.Decimal `json:"quantity"`
	CostBasis         decimal.Decimal `json:"cost_basis"`
	Proceeds          decimal.Decimal `json:"proceeds"`
	GainLoss          decimal.Decimal `json:"gain_loss"`
	AcquiredAt        string          `json:"acquired_at"`
	DisposedAt        string          `json:"disposed_at"`
	HoldingPeriodDays int             `json:"holding_period_days"`
	Treatment         string          `json:"treatment"`
}

type closedLotsResponse struct {
	Method  string              `json:"cost_basis_method"`
	Records []closedLotResponse `json:"records"`
}

// SaveSelections handles POST /selections.
func (h *LotHandler) SaveSelections(w http.ResponseWriter, r *http.Request) {
	var req saveSelectionsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	inputs := make([]service.SelectionInput, len(req.Selections))
	for i, s := range req.Selections {
		inputs[i] = service.SelectionInput{LotID: s.LotID, Quantity: s.Quantity.String()}
	}
	if err := h.svc.SaveSelections(r.Context(), req.SellFillID, inputs); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"sell_fill_id": req.SellFillID,
		"selections":   len(inputs),
	})
}

// OpenLots handles GET /lots?method=.
func (h *LotHandler) OpenLots(w http.ResponseWriter, r *http.Request) {
	method, err := h.svc.ResolveMethod(r.URL.Query().Get("method"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	positions, lots, err := h.svc.OpenPositions(r.Context(), method)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := openLotsResponse{
		Method:    method.Label(),
		Positions: make([]positionResponse, len(positions)),
		Lots:      make(map[string][]lotResponse, len(lots)),
	}
	for i, p := range positions {
		resp.Positions[i] = positionResponse{
			Asset:            p.Asset,
			Quantity:         p.Quantity,
			CostBasis:        p.CostBasis,
			AverageCost:      p.AverageCost,
			LotCount:         p.LotCount,
			OldestAcquiredAt: formatTime(p.OldestAcquiredAt),
		}
	}
	for asset, open := range lots {
		out := make([]lotResponse, len(open))
		for i, l := range open {
			out[i] = lotResponse{
				ID:                l.ID,
				Asset:             l.Asset,
				OriginalQuantity:  l.OriginalQuantity,
				RemainingQuantity: l.RemainingQuantity,
				UnitCost:          l.UnitCost,
				RemainingCost:     l.RemainingCost,
				AcquiredAt:        formatTime(l.AcquiredAt),
			}
		}
		resp.Lots[asset] = out
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ClosedLots handles GET /closed-lots?method=&year=.
func (h *LotHandler) ClosedLots(w http.ResponseWriter, r *http.Request) {
	method, err := h.svc.ResolveMethod(r.URL.Query().Get("method"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	year := 0
	if v := r.URL.Query().Get("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "year must be a valid integer")
			return
		}
	}

	records, err := h.svc.ClosedLots(r.Context(), method, year)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	resp := closedLotsResponse{Method: method.Label(), Records: make([]closedLotResponse, len(records))}
	for i, rec := range records {
		resp.Records[i] = toClosedLotResponse(rec)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func toClosedLotResponse(r domain.ClosedLotRecord) closedLotResponse {
	return closedLotResponse{
		ID:                r.ID,
		SellFillID:        r.SellFillID,
		LotID:             r.LotID,
		Asset:             r.Asset,
		Quantity:          r.Quantity,
		CostBasis:         r.CostBasis,
		Proceeds:          r.Proceeds,
		GainLoss:          r.GainLoss,
		AcquiredAt:        formatTime(r.AcquiredAt),
		DisposedAt:        formatTime(r.DisposedAt),
		HoldingPeriodDays: r.HoldingPeriodDays,
		Treatment:         string(r.Treatment),
	}
}
