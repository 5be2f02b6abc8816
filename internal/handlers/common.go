package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/services"
)

const requestTimeout = 10 * time.Second

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func contextWithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

// decodeBody reads a JSON body into dst, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return false
	}
	return true
}

// writeError maps a service error onto a status code. Backend causes are
// logged and never sent to the client.
func writeError(w http.ResponseWriter, log logging.Logger, op string, err error, failMsg string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(verr.Fields))
	case errors.Is(err, services.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
	case errors.Is(err, services.ErrForbidden):
		log.Warning("["+op+"] forbidden", "error", err.Error())
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Forbidden"))
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Not found"))
	case errors.Is(err, services.ErrUnsupported):
		log.Warning("["+op+"] unsupported by backend", "error", err.Error())
		writeJSON(w, http.StatusNotImplemented, models.NewErrorResponse("Not supported by this deployment"))
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("["+op+"] timed out", "error", err.Error())
		writeJSON(w, http.StatusGatewayTimeout, models.NewErrorResponse(failMsg))
	default:
		log.Error("["+op+"] service error", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(failMsg))
	}
}

// queryInt parses an optional integer query parameter. Returns nil when
// absent and records a field error when malformed.
func queryInt(r *http.Request, key string, errs map[string]string) *int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		errs[key] = "Must be an integer"
		return nil
	}
	return &n
}

func queryFloat(r *http.Request, key string, errs map[string]string) (float64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		errs[key] = "Must be a finite number"
		return 0, false
	}
	return f, true
}

// pageFromQuery reads cursor and limit.
func pageFromQuery(r *http.Request, errs map[string]string) services.Page {
	p := services.Page{Cursor: r.URL.Query().Get("cursor")}
	if limit := queryInt(r, "limit", errs); limit != nil {
		p.Limit = *limit
	}
	return p
}
