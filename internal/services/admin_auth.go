package services

import (
	"context"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/lotusmap/backend/internal/models"
)

// AdminAuth checks the configured admin credentials and issues admin
// tokens.
type AdminAuth struct {
	email         string
	passwordHash  string
	jwtSecret     string
	jwtExpiration time.Duration
	log           logging.Logger
}

func NewAdminAuth(email, passwordHash, jwtSecret string, jwtExpiration time.Duration, log logging.Logger) *AdminAuth {
	return &AdminAuth{
		email:         strings.ToLower(strings.TrimSpace(email)),
		passwordHash:  passwordHash,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		log:           log,
	}
}

// Login returns a signed admin token. Wrong credentials, or no admin
// configured, give ErrUnauthenticated.
func (a *AdminAuth) Login(ctx context.Context, req *models.AdminLoginRequest) (*models.AdminLoginResponse, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}
	if a.email == "" || a.passwordHash == "" {
		a.log.Warning("admin login attempted but no admin is configured")
		return nil, ErrUnauthenticated
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != a.email {
		return nil, ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(req.Password)); err != nil {
		a.log.Warning("admin login failed", "email", email)
		return nil, ErrUnauthenticated
	}

	expiresAt := time.Now().Add(a.jwtExpiration)
	token, err := a.generateToken(email, expiresAt)
	if err != nil {
		return nil, err
	}
	return &models.AdminLoginResponse{Token: token, ExpiresAt: expiresAt.UTC()}, nil
}

func (a *AdminAuth) generateToken(email string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"user_id": email,
		"sub":     email,
		"email":   email,
		"role":    models.RoleAdmin,
		"exp":     expiresAt.Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.jwtSecret))
}
