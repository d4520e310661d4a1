package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rail-account-api/internal/application/login"
	"github.com/rail-account-api/internal/pkg/validate"
)

// LoginHandler handles the three-step login flow.
type LoginHandler struct {
	svc       login.Service
	echoCodes bool
}

func NewLoginHandler(svc login.Service, echoCodes bool) *LoginHandler {
	return &LoginHandler{svc: svc, echoCodes: echoCodes}
}

type loginSubmitRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type loginRequestCodeRequest struct {
	SessionID   string `json:"session_id" validate:"required"`
	IDCardLast4 string `json:"id_card_last4" validate:"required,len=4"`
}

type loginSubmitCodeRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Code      string `json:"code" validate:"required,len=6"`
}

func (h *LoginHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req loginSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Submit(r.Context(), req.Identifier, req.Password)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Success:   true,
		SessionID: result.SessionID,
		Token:     result.Token,
		User:      toSafeUser(result.User),
	})
}

func (h *LoginHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req loginRequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, err := h.svc.RequestCode(r.Context(), req.SessionID, req.IDCardLast4)
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

func (h *LoginHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req loginSubmitCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.SubmitCode(r.Context(), req.SessionID, req.Code)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Success:   true,
		SessionID: result.SessionID,
		Token:     result.Token,
		User:      toSafeUser(result.User),
	})
}
