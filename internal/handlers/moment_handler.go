package handlers

import (
	"net/http"

	"github.com/ausocean/utils/logging"
	"github.com/go-chi/chi/v5"

	"github.com/lotusmap/backend/internal/middleware"
	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/services"
)

type MomentHandler struct {
	moments *services.MomentService
	log     logging.Logger
}

func NewMomentHandler(moments *services.MomentService, log logging.Logger) *MomentHandler {
	return &MomentHandler{moments: moments, log: log}
}

func (h *MomentHandler) Feed(w http.ResponseWriter, r *http.Request) {
	errs := make(map[string]string)
	page := pageFromQuery(r, errs)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	feed, err := h.moments.Feed(ctx, page)
	if err != nil {
		writeError(w, h.log, "MomentFeed", err, "Failed to load moments")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(feed))
}

func (h *MomentHandler) CreateMoment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMomentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	m, err := h.moments.Create(ctx, &req, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "CreateMoment", err, "Failed to create moment")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(m))
}

func (h *MomentHandler) Like(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	m, err := h.moments.Like(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, "LikeMoment", err, "Failed to like moment")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(m))
}

func (h *MomentHandler) Comment(w http.ResponseWriter, r *http.Request) {
	var req models.CommentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.moments.Comment(ctx, chi.URLParam(r, "id"), &req, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "CommentMoment", err, "Failed to add comment")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(c))
}
