package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/smalcash/backend/src/ledger"
	"github.com/smalcash/backend/src/models"
	"github.com/smalcash/backend/src/utils"
)

type ReportHandler struct {
	ledger   ledger.Store
	vendorID string
}

func NewReportHandler(store ledger.Store, vendorID string) *ReportHandler {
	return &ReportHandler{ledger: store, vendorID: vendorID}
}

// HandleGetDailyTotals returns revenue and count for the requested day
// (defaults to today), computed purely from the local ledger. The fee
// column is admin-only; anonymous callers get it zeroed.
func (h *ReportHandler) HandleGetDailyTotals(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}

	totals, err := h.ledger.DailyTotals(h.vendorID, day)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error computing daily totals: %v", err), http.StatusInternalServerError)
		return
	}
	if !IsAdminRequest(r) {
		totals.Fee = 0
	}
	utils.SendJSON(w, totals, http.StatusOK)
}

// HandleGetItemBreakdown returns the per-item sold quantities for the admin
// statistics sheet. Admin-gated by the router.
func (h *ReportHandler) HandleGetItemBreakdown(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}

	breakdown, err := h.ledger.DailyItemBreakdown(h.vendorID, day)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error computing item breakdown: %v", err), http.StatusInternalServerError)
		return
	}
	if breakdown == nil {
		breakdown = []models.ItemDaySummary{}
	}
	utils.SendJSON(w, breakdown, http.StatusOK)
}

// HandleGetRejectedSales lists sales the remote store permanently rejected.
// Admin-gated by the router.
func (h *ReportHandler) HandleGetRejectedSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.ledger.ListRejected()
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error listing rejected sales: %v", err), http.StatusInternalServerError)
		return
	}
	if sales == nil {
		sales = []models.Sale{}
	}
	utils.SendJSON(w, sales, http.StatusOK)
}

func (h *ReportHandler) dayParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	day := r.URL.Query().Get("day")
	if day == "" {
		return utils.DayKey(time.Now()), true
	}
	if _, err := utils.ParseDayKey(day); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid day %q, expected YYYY-MM-DD", day), http.StatusBadRequest)
		return "", false
	}
	return day, true
}
