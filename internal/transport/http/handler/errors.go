package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rail-account-api/internal/domain"
)

// httpError maps a wrapped domain sentinel to the HTTP status contract.
// Session-level failures (not found, bad request) map to 400 and code- or
// credential-level failures to 401, so the client can route the user to
// "restart the flow" versus "re-enter the code". Anything unrecognized is
// logged and returned as an opaque 500.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		slog.Error("internal error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
