package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"medibook/internal/slots/service"
	httputil "medibook/pkg/http"
	"medibook/pkg/logger"
	"medibook/pkg/middleware"
	"medibook/pkg/model"
)

type SlotHandler struct {
	slots        service.SlotService
	availability service.AvailabilityService
	log          *logger.Logger
}

func NewSlotHandler(slots service.SlotService, availability service.AvailabilityService, log *logger.Logger) *SlotHandler {
	return &SlotHandler{
		slots:        slots,
		availability: availability,
		log:          log,
	}
}

func (h *SlotHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/availability/slots", h.Query)
	router.GET("/api/v1/availability/slots/:practitionerId", h.Query)
	router.POST("/api/v1/availability/slots", middleware.RequireAdmin(h.Create))
	router.POST("/api/v1/availability/slots/recurring", middleware.RequireAdmin(h.CreateRecurring))
	router.POST("/api/v1/availability/slots/generate", middleware.RequireAdmin(h.Generate))
	router.PATCH("/api/v1/availability/slots/:id", middleware.RequireAdmin(h.Update))
	router.DELETE("/api/v1/availability/slots/:id", middleware.RequireAdmin(h.Delete))
	router.GET("/api/v1/slots/:id", middleware.RequireAdmin(h.GetByID))
}

func (h *SlotHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

// Query serves both the global listing and the per-practitioner one; the
// path parameter wins over a practitioner_id query parameter.
func (h *SlotHandler) Query(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	query := r.URL.Query()

	availableOnly, err := httputil.QueryBool(r, "available_only")
	if err != nil {
		h.writeError(w, "Query", err)
		return
	}

	q := &model.AvailabilityQuery{
		PractitionerID: query.Get("practitioner_id"),
		Date:           query.Get("date"),
		From:           query.Get("from"),
		To:             query.Get("to"),
		AvailableOnly:  availableOnly,
	}
	if id := ps.ByName("practitionerId"); id != "" {
		q.PractitionerID = id
	}

	views, err := h.availability.Query(r.Context(), q)
	if err != nil {
		h.writeError(w, "Query", err)
		return
	}

	if err := httputil.WriteList(w, views, len(views)); err != nil {
		h.log.Error("failed to write list response", "handler", "Query", "operation", "WriteList", "error", err)
	}
}

func (h *SlotHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.SlotCreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	slot, err := h.slots.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, slot); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) CreateRecurring(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.RecurrenceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "CreateRecurring", err)
		return
	}

	result, err := h.slots.GenerateFromRecurrence(r.Context(), &req)
	if err != nil {
		h.writeError(w, "CreateRecurring", err)
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateRecurring", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) Generate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.WorkingHoursRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Generate", err)
		return
	}

	result, err := h.slots.GenerateFromWorkingHours(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Generate", err)
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "Generate", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slot, err := h.slots.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, slot); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var updates model.SlotUpdate
	if err := httputil.DecodeJSON(r, &updates); err != nil {
		h.writeError(w, "Update", err)
		return
	}

	slot, err := h.slots.Update(r.Context(), ps.ByName("id"), &updates)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	if err := httputil.WriteSuccess(w, slot); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	force, err := httputil.QueryBool(r, "force")
	if err != nil {
		h.writeError(w, "Delete", err)
		return
	}

	if err := h.slots.Delete(r.Context(), ps.ByName("id"), force); err != nil {
		h.writeError(w, "Delete", err)
		return
	}

	httputil.WriteNoContent(w)
}
