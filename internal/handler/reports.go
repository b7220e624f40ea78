package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/export"
	"github.com/efreitasn/pnlledger/internal/report"
	"github.com/efreitasn/pnlledger/internal/service"
)

// ReportHandler serves daily P&L and annual tax reports.
type ReportHandler struct {
	svc    *service.LedgerService
	logger *slog.Logger
	now    func() time.Time
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(svc *service.LedgerService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{svc: svc, logger: logger, now: time.Now}
}

type daySummaryResponse struct {
	Date          string          `json:"date"`
	TradeCount    int             `json:"trade_count"`
	WinCount      int             `json:"win_count"`
	LossCount     int             `json:"loss_count"`
	ZeroCount     int             `json:"zero_count"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Proceeds      decimal.Decimal `json:"proceeds"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	CumulativePnL decimal.Decimal `json:"cumulative_pnl"`
	WinRate       decimal.Decimal `json:"win_rate"`
}

// Daily handles GET /reports/daily?date=YYYY-MM-DD&method=. The date
// defaults to today in UTC.
func (h *ReportHandler) Daily(w http.ResponseWriter, r *http.Request) {
	method, err := h.svc.ResolveMethod(r.URL.Query().Get("method"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	date := h.now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		if date, err = time.Parse(time.DateOnly, v); err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "date must be formatted as YYYY-MM-DD")
			return
		}
	}

	rep, err := h.svc.Daily(r.Context(), date, method)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, export.NewDailyReport(rep.Summary, rep.Alerts, method, h.now()))
}

// Series handles GET /reports/daily/series?method=.
func (h *ReportHandler) Series(w http.ResponseWriter, r *http.Request) {
	method, err := h.svc.ResolveMethod(r.URL.Query().Get("method"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	days, err := h.svc.DailySeries(r.Context(), method)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	resp := make([]daySummaryResponse, len(days))
	for i, d := range days {
		resp[i] = toDaySummaryResponse(d)
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"cost_basis_method": method.Label(),
		"days":              resp,
	})
}

// Tax handles GET /reports/tax/{year}?method=.
func (h *ReportHandler) Tax(w http.ResponseWriter, r *http.Request) {
	summary, method, ok := h.taxSummary(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, export.NewTaxReport(summary, method))
}

// Form8949 handles GET /reports/tax/{year}/form8949?method= and returns
// the disposals as a CSV attachment.
func (h *ReportHandler) Form8949(w http.ResponseWriter, r *http.Request) {
	summary, _, ok := h.taxSummary(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteForm8949(&buf, summary.Records); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"form_8949_%d.csv\"", summary.Year))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *ReportHandler) taxSummary(w http.ResponseWriter, r *http.Request) (report.AnnualSummary, domain.Method, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "year must be a valid integer")
		return report.AnnualSummary{}, "", false
	}
	method, err := h.svc.ResolveMethod(r.URL.Query().Get("method"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return report.AnnualSummary{}, "", false
	}
	summary, err := h.svc.TaxSummary(r.Context(), year, method)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return report.AnnualSummary{}, "", false
	}
	return summary, method, true
}

func toDaySummaryResponse(d report.DaySummary) daySummaryResponse {
	return daySummaryResponse{
		Date:          d.Date.Format(time.DateOnly),
		TradeCount:    d.TradeCount,
		WinCount:      d.WinCount,
		LossCount:     d.LossCount,
		ZeroCount:     d.ZeroCount,
		RealizedPnL:   d.RealizedPnL,
		Proceeds:      d.Proceeds,
		CostBasis:     d.CostBasis,
		CumulativePnL: d.CumulativePnL,
		WinRate:       d.WinRate(),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
