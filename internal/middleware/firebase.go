package middleware

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"

	"github.com/lotusmap/backend/internal/models"
)

// FirebaseAuthenticator verifies Firebase ID tokens. Users with a custom
// claim role=admin (or admin=true) are admins.
type FirebaseAuthenticator struct {
	client *auth.Client
}

func NewFirebaseAuthenticator(ctx context.Context, app *firebase.App) (*FirebaseAuthenticator, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not create firebase auth client")
	}
	return &FirebaseAuthenticator{client: client}, nil
}

func (a *FirebaseAuthenticator) Authenticate(ctx context.Context, idToken string) (*models.Identity, error) {
	token, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	id := &models.Identity{UserID: token.UID, Role: models.RoleUser}
	id.Email, _ = token.Claims["email"].(string)
	id.Name, _ = token.Claims["name"].(string)
	role, _ := token.Claims["role"].(string)
	isAdmin, _ := token.Claims["admin"].(bool)
	if role == models.RoleAdmin || isAdmin {
		id.Role = models.RoleAdmin
	}
	return id, nil
}
