package config

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// NewFirebaseApp initializes Firebase from the configured project and
// credentials. Without explicit credentials the default application
// credentials are used.
func NewFirebaseApp(ctx context.Context, cfg *Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.FirebaseCredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON)))
	}

	var fbCfg *firebase.Config
	if cfg.FirebaseProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize firebase")
	}
	return app, nil
}

// FirebaseConfigured reports whether Firebase settings are present.
func (c *Config) FirebaseConfigured() bool {
	return c.FirebaseProjectID != "" || c.FirebaseCredentialsJSON != ""
}
