package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rail-account-api/internal/application/phonechange"
	"github.com/rail-account-api/internal/pkg/validate"
	"github.com/rail-account-api/internal/transport/http/middleware"
)

// PhoneChangeHandler handles the phone-change flow. All actions require an
// authenticated caller; Request additionally re-checks the password.
type PhoneChangeHandler struct {
	svc       phonechange.Service
	echoCodes bool
}

func NewPhoneChangeHandler(svc phonechange.Service, echoCodes bool) *PhoneChangeHandler {
	return &PhoneChangeHandler{svc: svc, echoCodes: echoCodes}
}

type phoneChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPhone        string `json:"new_phone" validate:"required"`
}

type phoneChangeSendCodeRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type phoneChangeSubmitCodeRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Code      string `json:"code" validate:"required,len=6"`
}

func (h *PhoneChangeHandler) Action(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch chi.URLParam(r, "action") {
	case "request":
		var req phoneChangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sessionID, err := h.svc.Request(r.Context(), claims.UserID, req.CurrentPassword, req.NewPhone)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Envelope{Success: true, SessionID: sessionID})
	case "send-code":
		var req phoneChangeSendCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		code, err := h.svc.SendCode(r.Context(), req.SessionID)
		if err != nil {
			httpError(w, err)
			return
		}
		env := Envelope{Success: true, Message: "code sent"}
		if h.echoCodes {
			env.Code = code
		}
		writeJSON(w, http.StatusOK, env)
	case "submit-code":
		var req phoneChangeSubmitCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.svc.SubmitCode(r.Context(), req.SessionID, req.Code); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "phone updated"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
