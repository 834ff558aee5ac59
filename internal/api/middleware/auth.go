package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/telecare/telecare/internal/api/models"
	"github.com/telecare/telecare/internal/auth"
	"github.com/telecare/telecare/internal/user"
)

// principalKey is the context key for the authenticated caller.
type principalKey struct{}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (auth.Principal, error)
}

// Auth creates authentication middleware that validates JWT bearer tokens.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, r, tokenProblem(r))
				return
			}

			principal, err := validator.Validate(token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeUnauthorized(w, r, "invalid access token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not one of roles.
// It must run after Auth.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			problem := models.NewForbidden(GetRequestID(r.Context()), "insufficient role for this operation")
			problem.Instance = r.URL.Path
			problem.Write(w)
		})
	}
}

// bearerToken extracts the token from a case-insensitive "Bearer " header.
// Browsers cannot set headers on websocket handshakes, so upgrades may pass
// the token as the access_token query parameter instead.
func bearerToken(r *http.Request) (string, bool) {
	const bearerPrefix = "Bearer "
	header := r.Header.Get("Authorization")
	if header == "" && websocket.IsWebSocketUpgrade(r) {
		token := r.URL.Query().Get("access_token")
		return token, token != ""
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := header[len(bearerPrefix):]
	return token, token != ""
}

func tokenProblem(r *http.Request) string {
	header := r.Header.Get("Authorization")
	switch {
	case header == "":
		return "missing authorization header"
	case strings.EqualFold(strings.TrimSpace(header), "Bearer"):
		return "missing bearer token"
	default:
		return "invalid authorization header format"
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// WithPrincipal stores the authenticated caller in ctx.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal retrieves the authenticated caller from the context.
func GetPrincipal(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// GetUserID retrieves the authenticated user ID from the context.
// Returns an empty string if not authenticated.
func GetUserID(ctx context.Context) string {
	p, _ := GetPrincipal(ctx)
	return p.UserID
}

// GetRole retrieves the authenticated caller's role from the context.
func GetRole(ctx context.Context) user.Role {
	p, _ := GetPrincipal(ctx)
	return p.Role
}
