package handlers

import (
	"fmt"
	"net/http"

	"github.com/smalcash/backend/src/catalog"
	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
	"github.com/smalcash/backend/src/utils"
)

type CatalogHandler struct {
	catalog  *catalog.Service
	vendorID string
}

func NewCatalogHandler(catalogService *catalog.Service, vendorID string) *CatalogHandler {
	return &CatalogHandler{catalog: catalogService, vendorID: vendorID}
}

type catalogResponse struct {
	Items   []models.Item `json:"items"`
	Offline bool          `json:"offline"`
}

// HandleGetCatalog serves the cached item set. Never touches the network.
func (h *CatalogHandler) HandleGetCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Read(h.vendorID)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error reading catalog: %v", err), http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, catalogResponse{Items: items}, http.StatusOK)
}

// HandleRefreshCatalog refreshes from the remote source. A failed refresh
// is not an error dialog, whatever the cause: the response falls back to
// the last good cache and flags offline.
func (h *CatalogHandler) HandleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Refresh(r.Context(), h.vendorID)
	if err != nil {
		logger.L.Warn("Catalog refresh fell back to cache", "vendorID", h.vendorID, "error", err)
		cached, readErr := h.catalog.Read(h.vendorID)
		if readErr != nil {
			utils.SendJSONError(w, fmt.Sprintf("error reading catalog: %v", readErr), http.StatusInternalServerError)
			return
		}
		utils.SendJSON(w, catalogResponse{Items: cached, Offline: true}, http.StatusOK)
		return
	}
	utils.SendJSON(w, catalogResponse{Items: items}, http.StatusOK)
}
