package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rail-account-api/internal/application/passwordreset"
	"github.com/rail-account-api/internal/pkg/validate"
)

// PasswordResetHandler handles the four-step password-reset flow via
// action-style routing: /password-reset/{action}.
type PasswordResetHandler struct {
	svc       passwordreset.Service
	echoCodes bool
}

func NewPasswordResetHandler(svc passwordreset.Service, echoCodes bool) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc, echoCodes: echoCodes}
}

type verifyAccountRequest struct {
	Phone       string `json:"phone" validate:"required"`
	IDDocType   string `json:"id_doc_type" validate:"required"`
	IDDocNumber string `json:"id_doc_number" validate:"required"`
}

type sendResetCodeRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type verifyResetCodeRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Code      string `json:"code" validate:"required,len=6"`
}

type resetPasswordRequest struct {
	ResetToken      string `json:"reset_token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

func (h *PasswordResetHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "verify-account":
		h.verifyAccount(w, r)
	case "send-code":
		h.sendCode(w, r)
	case "verify-code":
		h.verifyCode(w, r)
	case "reset":
		h.reset(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *PasswordResetHandler) verifyAccount(w http.ResponseWriter, r *http.Request) {
	var req verifyAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID, err := h.svc.VerifyAccount(r.Context(), req.Phone, req.IDDocType, req.IDDocNumber)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, SessionID: sessionID})
}

func (h *PasswordResetHandler) sendCode(w http.ResponseWriter, r *http.Request) {
	var req sendResetCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, err := h.svc.SendResetCode(r.Context(), req.SessionID)
	if err != nil {
		httpError(w, err)
		return
	}
	env := Envelope{Success: true, Message: "code sent"}
	if h.echoCodes {
		env.Code = code
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *PasswordResetHandler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyResetCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resetToken, err := h.svc.VerifyResetCode(r.Context(), req.SessionID, req.Code)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, ResetToken: resetToken})
}

func (h *PasswordResetHandler) reset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.ResetToken, req.NewPassword, req.ConfirmPassword); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "password reset"})
}
