package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lotusmap/backend/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// AdminCookieName is the HttpOnly cookie carrying the admin token.
const AdminCookieName = "adminToken"

var ErrInvalidToken = errors.New("invalid or expired token")

// Authenticator verifies a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
}

// JWTAuthenticator verifies app-issued HS256 tokens. A role=admin claim
// counts only for the configured admin email; other subjects are users.
type JWTAuthenticator struct {
	secret     []byte
	adminEmail string
}

func NewJWTAuthenticator(secret, adminEmail string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret:     []byte(secret),
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
	}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, tokenString string) (*models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}

	id := &models.Identity{UserID: userID, Role: models.RoleUser}
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)
	if role, _ := claims["role"].(string); role == models.RoleAdmin && a.isAdmin(userID) {
		id.Role = models.RoleAdmin
	}
	return id, nil
}

func (a *JWTAuthenticator) isAdmin(userID string) bool {
	return a.adminEmail != "" && strings.ToLower(userID) == a.adminEmail
}

// Chain tries each authenticator in turn and returns the first success.
type Chain []Authenticator

func (c Chain) Authenticate(ctx context.Context, token string) (*models.Identity, error) {
	for _, a := range c {
		if a == nil {
			continue
		}
		if id, err := a.Authenticate(ctx, token); err == nil {
			return id, nil
		}
	}
	return nil, ErrInvalidToken
}

type tokenSource int

const (
	sourceNone tokenSource = iota
	sourceHeader
	sourceCookie
)

// tokenFromRequest reads the bearer token, falling back to the admin cookie.
// A malformed Authorization header returns sourceHeader with an empty token
// so the caller rejects it.
func tokenFromRequest(r *http.Request) (string, tokenSource) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", sourceHeader
		}
		return parts[1], sourceHeader
	}
	if c, err := r.Cookie(AdminCookieName); err == nil && c.Value != "" {
		return c.Value, sourceCookie
	}
	return "", sourceNone
}

// ClearAdminCookie expires the admin cookie on the client.
func ClearAdminCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// Authenticate resolves the caller's identity when credentials are
// present. Requests without credentials continue anonymously, as do
// requests whose admin cookie no longer verifies; the stale cookie is
// expired. A bad Authorization header is rejected.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, src := tokenFromRequest(r)
			if src == sourceNone {
				next.ServeHTTP(w, r)
				return
			}
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid authorization header format"))
				return
			}

			id, err := auth.Authenticate(r.Context(), token)
			if err != nil && src == sourceCookie {
				ClearAdminCookie(w)
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests. It must run after Authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentity(r.Context()) == nil {
			writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Authorization required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous (401) and non-admin (403) requests.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetIdentity(r.Context())
		if id == nil {
			writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Authorization required"))
			return
		}
		if !id.IsAdmin() {
			writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetIdentity returns the caller, or nil for anonymous requests.
func GetIdentity(ctx context.Context) *models.Identity {
	id, _ := ctx.Value(identityKey).(*models.Identity)
	return id
}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
