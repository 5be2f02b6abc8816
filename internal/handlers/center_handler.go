package handlers

import (
	"net/http"

	"github.com/ausocean/utils/logging"
	"github.com/go-chi/chi/v5"

	"github.com/lotusmap/backend/internal/middleware"
	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/services"
)

type CenterHandler struct {
	registry *services.CenterRegistry
	log      logging.Logger
}

func NewCenterHandler(registry *services.CenterRegistry, log logging.Logger) *CenterHandler {
	return &CenterHandler{registry: registry, log: log}
}

func (h *CenterHandler) ListCenters(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	centers, err := h.registry.List(ctx, r.URL.Query().Get("country"), r.URL.Query().Get("region"))
	if err != nil {
		writeError(w, h.log, "ListCenters", err, "Failed to list centers")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(centers))
}

func (h *CenterHandler) GetCenter(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.registry.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, "GetCenter", err, "Failed to get center")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c))
}

func (h *CenterHandler) CreateCenter(w http.ResponseWriter, r *http.Request) {
	var req models.CenterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.registry.Create(ctx, &req, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "CreateCenter", err, "Failed to create center")
		return
	}
	h.log.Info("[CreateCenter] center created", "id", c.ID, "name", c.Name)
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(c))
}

func (h *CenterHandler) UpdateCenter(w http.ResponseWriter, r *http.Request) {
	var req models.CenterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.registry.Update(ctx, chi.URLParam(r, "id"), &req, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "UpdateCenter", err, "Failed to update center")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c))
}

func (h *CenterHandler) DeleteCenter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.registry.Delete(ctx, id, middleware.GetIdentity(r.Context())); err != nil {
		writeError(w, h.log, "DeleteCenter", err, "Failed to delete center")
		return
	}
	h.log.Info("[DeleteCenter] center deleted", "id", id)
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"id": id}))
}
