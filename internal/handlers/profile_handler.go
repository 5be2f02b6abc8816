package handlers

import (
	"net/http"
	"strings"

	"github.com/ausocean/utils/logging"
	"github.com/go-chi/chi/v5"

	"github.com/lotusmap/backend/internal/middleware"
	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/services"
)

type ProfileHandler struct {
	directory *services.DirectoryService
	centers   *services.CenterRegistry
	log       logging.Logger
}

func NewProfileHandler(directory *services.DirectoryService, centers *services.CenterRegistry, log logging.Logger) *ProfileHandler {
	return &ProfileHandler{
		directory: directory,
		centers:   centers,
		log:       log,
	}
}

// ListProfiles serves the public directory with optional filters.
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	errs := make(map[string]string)
	q := r.URL.Query()
	filter := models.ProfileFilter{
		Country:    strings.TrimSpace(q.Get("country")),
		City:       strings.TrimSpace(q.Get("city")),
		Profession: strings.TrimSpace(q.Get("profession")),
		Region:     strings.TrimSpace(q.Get("region")),
		CenterID:   strings.TrimSpace(q.Get("centerId")),
		MinLesson:  queryInt(r, "minLesson", errs),
		MaxLesson:  queryInt(r, "maxLesson", errs),
		MinYears:   queryInt(r, "minYears", errs),
		MaxYears:   queryInt(r, "maxYears", errs),
	}
	page := pageFromQuery(r, errs)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.directory.ListProfiles(ctx, filter, page)
	if err != nil {
		writeError(w, h.log, "ListProfiles", err, "Failed to list profiles")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(result))
}

// SubmitProfile accepts a new profile for moderation. Anonymous
// submissions are allowed.
func (h *ProfileHandler) SubmitProfile(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	// A center given by name resolves to its id when known.
	if req.CenterID == "" && req.CenterName != "" && h.centers != nil {
		if c, err := h.centers.FindByName(ctx, req.CenterName); err == nil {
			req.CenterID = c.ID
		}
	}

	id, err := h.directory.SubmitProfile(ctx, &req, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "SubmitProfile", err, "Failed to submit profile")
		return
	}

	h.log.Info("[SubmitProfile] profile submitted", "id", id)
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(map[string]string{
		"id":     id,
		"status": models.StatusPending,
	}))
}

// FindNearby searches visible profiles around lat/lng.
func (h *ProfileHandler) FindNearby(w http.ResponseWriter, r *http.Request) {
	errs := make(map[string]string)
	lat, hasLat := queryFloat(r, "lat", errs)
	lng, hasLng := queryFloat(r, "lng", errs)
	if _, bad := errs["lat"]; !hasLat && !bad {
		errs["lat"] = "lat is required"
	}
	if _, bad := errs["lng"]; !hasLng && !bad {
		errs["lng"] = "lng is required"
	}
	radius, hasRadius := queryFloat(r, "radius", errs)
	if !hasRadius {
		radius = services.DefaultNearbyRadiusKm
	}
	limit := queryInt(r, "limit", errs)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := h.directory.FindNearby(ctx, lng, lat, radius, n)
	if err != nil {
		writeError(w, h.log, "FindNearby", err, "Failed to search nearby profiles")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(results))
}

// GetProfile returns the full record to its owner and admins, and the
// public view to everyone else.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := middleware.GetIdentity(r.Context())

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := h.directory.GetProfile(ctx, id, actor)
	if err != nil {
		writeError(w, h.log, "GetProfile", err, "Failed to get profile")
		return
	}
	if services.CanManageProfile(p, actor) {
		writeJSON(w, http.StatusOK, models.NewSuccessResponse(p))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p.Public()))
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.UpdateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := h.directory.UpdateProfile(ctx, id, &req, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "UpdateProfile", err, "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p))
}

func (h *ProfileHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stats, err := h.directory.ComputeStatistics(ctx)
	if err != nil {
		writeError(w, h.log, "GetStatistics", err, "Failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(stats))
}
