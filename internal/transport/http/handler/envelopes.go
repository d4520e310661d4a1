package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rail-account-api/internal/domain"
)

// Envelope is the uniform response wrapper every flow step returns.
// Code is only populated when debug code echo is enabled.
type Envelope struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	ResetToken string    `json:"reset_token,omitempty"`
	Token      string    `json:"token,omitempty"`
	Code       string    `json:"code,omitempty"`
	EmailCode  string    `json:"email_code,omitempty"`
	User       *SafeUser `json:"user,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// SafeUser is the client-facing projection of a User: no hash, no full
// id-document number.
type SafeUser struct {
	UserID    string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone"`
	RealName  string     `json:"real_name"`
	IDDocType string     `json:"id_doc_type"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		UserID:    u.UserID,
		Username:  u.Username,
		Email:     u.Email,
		Phone:     u.Phone,
		RealName:  u.RealName,
		IDDocType: u.IDDocType,
		LastLogin: u.LastLoginAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Envelope{Success: false, Error: msg})
}
