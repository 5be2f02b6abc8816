package handlers

import (
	"net/http"

	"github.com/ausocean/utils/logging"
	"github.com/go-chi/chi/v5"

	"github.com/lotusmap/backend/internal/middleware"
	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/services"
)

type PrayerHandler struct {
	prayers *services.PrayerService
	log     logging.Logger
}

func NewPrayerHandler(prayers *services.PrayerService, log logging.Logger) *PrayerHandler {
	return &PrayerHandler{prayers: prayers, log: log}
}

func (h *PrayerHandler) ListPrayers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	prayers, err := h.prayers.ListActive(ctx, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "ListPrayers", err, "Failed to list prayer requests")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(prayers))
}

func (h *PrayerHandler) GetPrayer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := h.prayers.Get(ctx, chi.URLParam(r, "id"), middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "GetPrayer", err, "Failed to get prayer request")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p))
}

func (h *PrayerHandler) SubmitPrayer(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePrayerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := h.prayers.Submit(ctx, &req, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "SubmitPrayer", err, "Failed to submit prayer request")
		return
	}
	h.log.Info("[SubmitPrayer] prayer request created", "id", p.ID)
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(p))
}

func (h *PrayerHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req models.PrayerResponseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.prayers.Respond(ctx, chi.URLParam(r, "id"), &req, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "Respond", err, "Failed to add response")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(resp))
}

func (h *PrayerHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req models.PrayerStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := h.prayers.SetStatus(ctx, chi.URLParam(r, "id"), req.Status, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "SetPrayerStatus", err, "Failed to update prayer request")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p))
}
