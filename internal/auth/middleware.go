package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sha1n/relic-rag/internal/config"
)

// Identity is the authenticated caller: who they are and which role they act as.
type Identity struct {
	Subject string
	Role    string
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by the middleware, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// excludedPaths are paths that bypass authentication (e.g., health checks)
var excludedPaths = map[string]bool{
	"/health": true,
}

// isExcludedPath checks if the request path should bypass authentication
func isExcludedPath(path string) bool {
	return excludedPaths[path]
}

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidToken       = errors.New("invalid token")
)

// identify resolves the caller of a request.
type identify func(r *http.Request) (Identity, error)

// NewMiddleware creates a new authentication middleware based on settings
func NewMiddleware(settings config.AuthSettings) (func(http.Handler) http.Handler, error) {
	switch settings.Type {
	case config.AuthTypeHeader:
		if settings.Header.Subject == "" || settings.Header.Role == "" {
			return nil, fmt.Errorf("header auth requires subject and role header names")
		}
		return withExclusions(middleware(headerIdentity(settings.Header))), nil
	case config.AuthTypeJWT:
		if settings.JWT.Secret == "" {
			return nil, fmt.Errorf("jwt auth requires a secret")
		}
		roleClaim := settings.JWT.RoleClaim
		if roleClaim == "" {
			roleClaim = "role"
		}
		return withExclusions(middleware(jwtIdentity([]byte(settings.JWT.Secret), roleClaim))), nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}
}

// withExclusions wraps an auth middleware to skip auth for excluded paths
func withExclusions(authMiddleware func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authedHandler := authMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExcludedPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			authedHandler.ServeHTTP(w, r)
		})
	}
}

func middleware(resolve identify) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolve(r)
			if err != nil {
				slog.Debug("Rejected unauthenticated request", "path", r.URL.Path, "error", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// headerIdentity trusts identity headers set by an upstream gateway.
func headerIdentity(settings config.HeaderAuthSettings) identify {
	return func(r *http.Request) (Identity, error) {
		subject := strings.TrimSpace(r.Header.Get(settings.Subject))
		role := strings.TrimSpace(r.Header.Get(settings.Role))
		if subject == "" || role == "" {
			return Identity{}, errMissingCredentials
		}
		return Identity{Subject: subject, Role: role}, nil
	}
}

// jwtIdentity verifies an HS256 bearer token and reads the subject and role claims.
func jwtIdentity(secret []byte, roleClaim string) identify {
	return func(r *http.Request) (Identity, error) {
		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenStr) == "" {
			return Identity{}, errMissingCredentials
		}
		return ParseToken(strings.TrimSpace(tokenStr), secret, roleClaim)
	}
}

// ParseToken verifies an HS256 token and returns the identity it carries.
func ParseToken(tokenStr string, secret []byte, roleClaim string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unexpected claims type", errInvalidToken)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", errInvalidToken)
	}

	role, _ := claims[roleClaim].(string)
	role = strings.TrimSpace(role)
	if role == "" {
		return Identity{}, fmt.Errorf("%w: missing %s claim", errInvalidToken, roleClaim)
	}

	return Identity{Subject: subject, Role: role}, nil
}

// SignToken issues an HS256 token for id. It backs the CLI token helper and tests.
func SignToken(id Identity, secret []byte, roleClaim string, claims jwt.MapClaims) (string, error) {
	all := jwt.MapClaims{}
	for k, v := range claims {
		all[k] = v
	}
	all["sub"] = id.Subject
	all[roleClaim] = id.Role
	return jwt.NewWithClaims(jwt.SigningMethodHS256, all).SignedString(secret)
}
