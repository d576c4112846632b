package handler

import (
	"net/http"
	"time"

	"medibook/internal/bookings/service"
	apperrors "medibook/pkg/errors"
	httputil "medibook/pkg/http"
	"medibook/pkg/logger"
	"medibook/pkg/middleware"
	"medibook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	locks     service.LockService
	committer service.BookingCommitter
	log       *logger.Logger
}

func NewBookingHandler(locks service.LockService, committer service.BookingCommitter, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		locks:     locks,
		committer: committer,
		log:       log,
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings/lock", h.Lock)
	router.POST("/api/v1/bookings/unlock", h.Unlock)
	router.POST("/api/v1/bookings/commit", h.Commit)
	router.POST("/api/v1/bookings/cancel", h.Cancel)
	router.GET("/api/v1/bookings/appointments/:id", h.GetByID)
	router.POST("/api/v1/bookings/appointments/:id/cancel", middleware.RequireAdmin(h.CancelByID))
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

// Lock answers 409 LOCK_CONFLICT when another caller holds the slot.
func (h *BookingHandler) Lock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.LockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Lock", err)
		return
	}

	result, err := h.locks.Acquire(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Lock", err)
		return
	}
	if !result.Granted {
		conflict := apperrors.LockConflict(result.SlotID)
		if result.ExpiresAt != nil {
			conflict.Details["held_until"] = result.ExpiresAt.UTC().Format(time.RFC3339)
		}
		h.writeError(w, "Lock", conflict)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Lock", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Unlock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.UnlockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Unlock", err)
		return
	}

	if err := h.locks.Release(r.Context(), &req); err != nil {
		h.writeError(w, "Unlock", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *BookingHandler) Commit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.CommitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Commit", err)
		return
	}

	caller, _ := middleware.IdentityFrom(r.Context())
	appt, err := h.committer.Commit(r.Context(), &req, caller)
	if err != nil {
		h.writeError(w, "Commit", err)
		return
	}

	if err := httputil.WriteCreated(w, appt); err != nil {
		h.log.Error("failed to write created response", "handler", "Commit", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.CancelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	appt, err := h.committer.CancelByToken(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, _ := middleware.IdentityFrom(r.Context())
	appt, err := h.committer.GetByID(r.Context(), ps.ByName("id"), caller)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) CancelByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	appt, err := h.committer.CancelByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "CancelByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "CancelByID", "operation", "WriteSuccess", "error", err)
	}
}
