package app

import (
	"context"
	"net/http"
	"time"

	apperrors "medibook/pkg/errors"
	httputil "medibook/pkg/http"
	"medibook/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type PingFunc func(ctx context.Context) error

type HealthHandler struct {
	ping    PingFunc
	backend string
	log     *logger.Logger
}

func NewHealthHandler(ping PingFunc, backend string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{ping: ping, backend: backend, log: log}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"}); err != nil {
		h.log.Error("failed to write health response", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			h.log.Warn("Readiness check failed", "backend", h.backend, "error", err)
			_ = httputil.WriteError(w, apperrors.Unavailable(h.backend))
			return
		}
	}

	if err := httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready", "backend": h.backend}); err != nil {
		h.log.Error("failed to write ready response", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
