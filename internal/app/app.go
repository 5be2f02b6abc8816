// Package app assembles the storage, cache, and services from configuration.
package app

import (
	"context"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/lotusmap/backend/internal/cache"
	"github.com/lotusmap/backend/internal/config"
	"github.com/lotusmap/backend/internal/middleware"
	"github.com/lotusmap/backend/internal/services"
	"github.com/lotusmap/backend/internal/storage"
)

const connectTimeout = 15 * time.Second

type App struct {
	Config *config.Config
	Log    logging.Logger

	Store    storage.Store
	Cache    cache.Cache
	Firebase *firebase.App
	Auth     middleware.Authenticator

	Directory *services.DirectoryService
	Centers   *services.CenterRegistry
	Prayers   *services.PrayerService
	Moments   *services.MomentService
	Analytics *services.AnalyticsService
	AdminAuth *services.AdminAuth

	closers []func(context.Context) error
}

// New connects to the configured backends and builds the services.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	if cfg.FirebaseConfigured() {
		fb, err := config.NewFirebaseApp(ctx, cfg)
		if err != nil {
			if cfg.StoreBackend == config.BackendFirestore {
				return nil, err
			}
			log.Warning("firebase unavailable, continuing without it", "error", err.Error())
		}
		a.Firebase = fb
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	a.Cache = a.openCache(ctx)
	a.Auth = a.authenticator(ctx)

	a.Directory = services.NewDirectoryService(store, a.Cache, cfg.CacheTTL, log)
	a.Centers = services.NewCenterRegistry(store, log)
	a.Prayers = services.NewPrayerService(store, log)
	a.Moments = services.NewMomentService(store, log)
	a.Analytics = services.NewAnalyticsService(store, a.Directory, log)
	a.AdminAuth = services.NewAdminAuth(cfg.AdminEmail, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTExpiration, log)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	cfg := a.Config
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendJSON, "":
		a.Log.Info("using JSON file storage", "dir", cfg.DataDir)
		return storage.NewJSONStore(cfg.DataDir)

	case config.BackendMongo:
		a.Log.Info("using MongoDB storage", "db", cfg.MongoDB)
		return storage.NewMongoStore(cctx, cfg.MongoURI, cfg.MongoDB, a.Log)

	case config.BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
		a.Log.Info("using PostgreSQL storage")
		return storage.NewPostgresStore(cctx, cfg.PostgresDSN, a.Log)

	case config.BackendFirestore:
		if a.Firebase == nil {
			return nil, errors.New("firestore backend requires FIREBASE_PROJECT_ID or FIREBASE_CREDENTIALS_JSON")
		}
		client, err := a.Firebase.Firestore(cctx)
		if err != nil {
			return nil, errors.Wrap(err, "could not create firestore client")
		}
		a.Log.Info("using Firestore storage", "project", cfg.FirebaseProjectID)
		return storage.NewFirestoreStore(client, a.Log), nil
	}
	return nil, errors.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}

// openCache prefers Redis and falls back to an in-process cache.
func (a *App) openCache(ctx context.Context) cache.Cache {
	cfg := a.Config
	if cfg.CacheTTL <= 0 {
		return cache.Nop{}
	}
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	rc, err := cache.NewRedis(cctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		a.Log.Warning("redis unavailable, using in-process cache", "addr", cfg.RedisAddr, "error", err.Error())
		return cache.NewMemory()
	}
	a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
	a.Log.Info("using redis cache", "addr", cfg.RedisAddr)
	return rc
}

// authenticator accepts app-issued tokens, and Firebase ID tokens when
// Firebase is configured.
func (a *App) authenticator(ctx context.Context) middleware.Authenticator {
	chain := middleware.Chain{middleware.NewJWTAuthenticator(a.Config.JWTSecret, a.Config.AdminEmail)}
	if a.Firebase != nil {
		fa, err := middleware.NewFirebaseAuthenticator(ctx, a.Firebase)
		if err != nil {
			a.Log.Warning("firebase auth unavailable", "error", err.Error())
		} else {
			chain = append(chain, fa)
		}
	}
	return chain
}

// Close releases connections in reverse order of opening.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Log.Warning("close failed", "error", err.Error())
		}
	}
	a.closers = nil
}
