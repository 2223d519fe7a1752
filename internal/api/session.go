package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/auth"
)

// SessionHandler serves login. There is no logout endpoint: sessions are
// stateless tokens, so the frontend logs out by discarding its copy.
type SessionHandler struct {
	auth   *auth.Manager
	logger *zap.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(mgr *auth.Manager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		auth:   mgr,
		logger: logger.Named("session_handler"),
	}
}

// Login handles POST /api/v1/auth/session: exchange the operator password
// for a session token.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	token, err := h.auth.Login(body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			// Log the attempt but not the password.
			h.logger.Warn("failed login attempt", zap.String("remote_addr", r.RemoteAddr))
			ErrUnauthorized(w)
			return
		}
		h.logger.Error("failed to issue session token", zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, map[string]string{"token": token})
}
