package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rail-account-api/internal/application/registration"
	"github.com/rail-account-api/internal/domain"
	"github.com/rail-account-api/internal/pkg/validate"
)

// RegistrationHandler handles the three-step registration flow.
type RegistrationHandler struct {
	svc       registration.Service
	echoCodes bool
}

func NewRegistrationHandler(svc registration.Service, echoCodes bool) *RegistrationHandler {
	return &RegistrationHandler{svc: svc, echoCodes: echoCodes}
}

type registrationSendCodeRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Phone     bool   `json:"phone"`
	Email     bool   `json:"email"`
}

type registrationCompleteRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	SMSCode   string `json:"sms_code"`
	EmailCode string `json:"email_code"`
}

func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, SessionID: sessionID})
}

func (h *RegistrationHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req registrationSendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	codes, err := h.svc.SendCode(r.Context(), req.SessionID, registration.Channels{
		Phone: req.Phone,
		Email: req.Email,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	env := Envelope{Success: true, Message: "code sent"}
	if h.echoCodes {
		env.Code = codes.SMS
		env.EmailCode = codes.Email
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *RegistrationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req registrationCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.svc.Complete(r.Context(), req.SessionID, req.SMSCode, req.EmailCode)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Success: true, User: toSafeUser(u)})
}
