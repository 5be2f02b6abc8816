package handlers

import (
	"errors"
	"net/http"

	"github.com/ausocean/utils/logging"
	"github.com/go-chi/chi/v5"

	"github.com/lotusmap/backend/internal/middleware"
	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/services"
)

type AdminHandler struct {
	auth      *services.AdminAuth
	directory *services.DirectoryService
	analytics *services.AnalyticsService
	log       logging.Logger
}

func NewAdminHandler(auth *services.AdminAuth, directory *services.DirectoryService, analytics *services.AnalyticsService, log logging.Logger) *AdminHandler {
	return &AdminHandler{
		auth:      auth,
		directory: directory,
		analytics: analytics,
		log:       log,
	}
}

// Login issues an admin token, in the body and as an HttpOnly cookie.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.auth.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid email or password"))
			return
		}
		writeError(w, h.log, "AdminLogin", err, "Failed to log in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AdminCookieName,
		Value:    resp.Token,
		Path:     "/",
		Expires:  resp.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	h.log.Info("[AdminLogin] admin logged in")
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(resp))
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearAdminCookie(w)
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(nil))
}

// ListProfiles lists every profile regardless of moderation state, optionally
// narrowed by ?status=.
func (h *AdminHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	errs := make(map[string]string)
	page := pageFromQuery(r, errs)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.directory.ListAllProfiles(ctx, middleware.GetIdentity(r.Context()), r.URL.Query().Get("status"), page)
	if err != nil {
		writeError(w, h.log, "AdminListProfiles", err, "Failed to list profiles")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(result))
}

func (h *AdminHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	var req models.ApprovalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := h.directory.SetApprovalStatus(ctx, chi.URLParam(r, "id"), req.Status, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.log, "SetApproval", err, "Failed to update profile status")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p))
}

// ListAnalytics returns daily snapshots between ?from= and ?to= (YYYY-MM-DD).
func (h *AdminHandler) ListAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q := r.URL.Query()
	snaps, err := h.analytics.List(ctx, middleware.GetIdentity(r.Context()), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, h.log, "ListAnalytics", err, "Failed to list analytics")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(snaps))
}

func (h *AdminHandler) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := h.analytics.Snapshot(ctx)
	if err != nil {
		writeError(w, h.log, "TakeSnapshot", err, "Failed to record snapshot")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(snap))
}
