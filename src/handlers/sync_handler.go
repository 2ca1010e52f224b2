package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/smalcash/backend/src/ledger"
	"github.com/smalcash/backend/src/logger"
	syncengine "github.com/smalcash/backend/src/sync"
	"github.com/smalcash/backend/src/utils"
)

type SyncHandler struct {
	engine *syncengine.Engine
	ledger ledger.Store
}

func NewSyncHandler(engine *syncengine.Engine, store ledger.Store) *SyncHandler {
	return &SyncHandler{engine: engine, ledger: store}
}

type syncStatusResponse struct {
	syncengine.Status
	Pending int `json:"pending"`
}

func (h *SyncHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.ledger.UnsynchronizedCount()
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error counting pending sales: %v", err), http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, syncStatusResponse{Status: h.engine.Status(), Pending: pending}, http.StatusOK)
}

func (h *SyncHandler) HandleRunNow(w http.ResponseWriter, r *http.Request) {
	h.engine.TriggerNow()
	utils.SendJSON(w, map[string]string{"status": "triggered"}, http.StatusAccepted)
}

// HandleUnsyncedStream streams the pending-sale count as server-sent events
// for the UI badge. One event per ledger mutation, starting with the
// current count.
func (h *SyncHandler) HandleUnsyncedStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.SendJSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// The server-wide write timeout would sever the stream after its first
	// deadline; this response lives as long as the client does.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.L.Warn("Could not clear write deadline for event stream", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, unsubscribe := h.ledger.SubscribeUnsynchronized()
	defer unsubscribe()

	count, err := h.ledger.UnsynchronizedCount()
	if err != nil {
		logger.L.Error("Failed to read initial unsynchronized count for stream", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %d\n\n", count)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case count, open := <-updates:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %d\n\n", count)
			flusher.Flush()
		}
	}
}
