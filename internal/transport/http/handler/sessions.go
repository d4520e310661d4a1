package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rail-account-api/internal/domain"
	"github.com/rail-account-api/internal/transport/http/middleware"
)

type sessionStore interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

type userGetter interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// SessionsHandler exposes the authenticated session surface: inspecting the
// current session and logging out.
type SessionsHandler struct {
	sessions sessionStore
	users    userGetter
}

func NewSessionsHandler(sessions sessionStore, users userGetter) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, users: users}
}

// SafeSession is the client-facing projection of a Session. The payload map
// never leaves the server.
type SafeSession struct {
	SessionID string    `json:"session_id"`
	Purpose   string    `json:"purpose"`
	Step      string    `json:"step"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt int64     `json:"expires_at"`
}

type sessionEnvelope struct {
	Success bool         `json:"success"`
	Session *SafeSession `json:"session"`
	User    *SafeUser    `json:"user,omitempty"`
}

func toSafeSession(s *domain.Session) *SafeSession {
	return &SafeSession{
		SessionID: s.SessionID,
		Purpose:   s.Purpose,
		Step:      s.Step,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

// GetCurrent returns the caller's session together with the owning user.
func (h *SessionsHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sess, err := h.sessions.Get(r.Context(), claims.SessionID)
	if err != nil {
		httpError(w, err)
		return
	}
	u, err := h.users.Get(r.Context(), sess.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionEnvelope{
		Success: true,
		Session: toSafeSession(sess),
		User:    toSafeUser(u),
	})
}

// Logout destroys the caller's session. The JWT keeps verifying until its
// own expiry, but without the session it no longer authorizes anything.
func (h *SessionsHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.sessions.Delete(r.Context(), claims.SessionID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "logged out"})
}
