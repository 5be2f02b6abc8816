package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appMiddleware "github.com/lotusmap/backend/internal/middleware"
)

// RouterConfig holds everything the HTTP surface needs.
type RouterConfig struct {
	Auth        appMiddleware.Authenticator
	CORSOrigins []string

	Profiles *ProfileHandler
	Centers  *CenterHandler
	Prayers  *PrayerHandler
	Moments  *MomentHandler
	Admin    *AdminHandler
}

func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appMiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rc.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Login and logout must work with a stale admin cookie.
		r.Post("/auth/admin/login", rc.Admin.Login)
		r.Post("/auth/admin/logout", rc.Admin.Logout)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.Authenticate(rc.Auth))
			apiRoutes(r, rc)
		})
	})

	return r
}

func apiRoutes(r chi.Router, rc RouterConfig) {
	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", rc.Profiles.ListProfiles)
		r.Post("/", rc.Profiles.SubmitProfile)
		r.Get("/nearby", rc.Profiles.FindNearby)
		r.Get("/{id}", rc.Profiles.GetProfile)
		r.With(appMiddleware.RequireAuth).Patch("/{id}", rc.Profiles.UpdateProfile)
	})
	r.Get("/statistics", rc.Profiles.GetStatistics)

	r.Route("/centers", func(r chi.Router) {
		r.Get("/", rc.Centers.ListCenters)
		r.Get("/{id}", rc.Centers.GetCenter)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAdmin)
			r.Post("/", rc.Centers.CreateCenter)
			r.Put("/{id}", rc.Centers.UpdateCenter)
			r.Delete("/{id}", rc.Centers.DeleteCenter)
		})
	})

	r.Route("/prayer-requests", func(r chi.Router) {
		r.Get("/", rc.Prayers.ListPrayers)
		r.Get("/{id}", rc.Prayers.GetPrayer)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth)
			r.Post("/", rc.Prayers.SubmitPrayer)
			r.Post("/{id}/responses", rc.Prayers.Respond)
			r.Patch("/{id}", rc.Prayers.SetStatus)
		})
	})

	r.Route("/moments", func(r chi.Router) {
		r.Get("/", rc.Moments.Feed)
		r.Post("/{id}/like", rc.Moments.Like)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth)
			r.Post("/", rc.Moments.CreateMoment)
			r.Post("/{id}/comments", rc.Moments.Comment)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(appMiddleware.RequireAdmin)

		r.Get("/profiles", rc.Admin.ListProfiles)
		r.Patch("/profiles/{id}", rc.Admin.SetApproval)
		r.Get("/analytics", rc.Admin.ListAnalytics)
		r.Post("/analytics/snapshot", rc.Admin.TakeSnapshot)
	})
}
