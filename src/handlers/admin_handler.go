package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/security"
	"github.com/smalcash/backend/src/utils"
)

type AdminHandler struct {
	auth       *security.AuthService
	registerID string
}

func NewAdminHandler(auth *security.AuthService, registerID string) *AdminHandler {
	return &AdminHandler{auth: auth, registerID: registerID}
}

type adminLoginRequest struct {
	PIN string `json:"pin"`
}

type adminLoginResponse struct {
	Token string `json:"token"`
}

// HandleAdminLogin exchanges the shared admin PIN for a short-lived session
// token.
func (h *AdminHandler) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.auth.VerifyPIN(req.PIN); err != nil {
		logger.L.Warn("Admin login rejected", "registerID", h.registerID, "remoteAddr", r.RemoteAddr)
		utils.SendJSONError(w, "wrong PIN", http.StatusUnauthorized)
		return
	}

	token, err := h.auth.GenerateToken(h.registerID)
	if err != nil {
		utils.SendJSONError(w, "failed to create session token", http.StatusInternalServerError)
		return
	}
	logger.L.Info("Admin login", "registerID", h.registerID)
	utils.SendJSON(w, adminLoginResponse{Token: token}, http.StatusOK)
}
