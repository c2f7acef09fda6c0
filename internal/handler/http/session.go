package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/agricoventas/internal/service"
	"github.com/utafrali/agricoventas/pkg/httputil"
	"github.com/utafrali/agricoventas/pkg/middleware"
)

// SessionHandler opens and closes the cart session of the authenticated user.
type SessionHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(svc *service.CartService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  logger,
	}
}

type sessionResponse struct {
	UserID string `json:"user_id"`
	Active bool   `json:"active"`
}

// Start handles POST /api/v1/session
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if err := h.service.StartSession(r.Context(), userID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, sessionResponse{UserID: userID, Active: true})
}

// End handles DELETE /api/v1/session. The persisted cart survives for the
// next session.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if err := h.service.EndSession(r.Context(), userID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, sessionResponse{UserID: userID, Active: false})
}
