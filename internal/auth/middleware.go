package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/financetracker/backend/internal/errors"
	"github.com/financetracker/backend/internal/logger"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Authenticator resolves a bearer token into the calling identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// Middleware rejects requests without a valid bearer token and stores the
// resolved Identity in the request context.
func Middleware(a Authenticator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := apperrors.GetRequestID(r.Context())

			token, appErr := bearerToken(r)
			if appErr != nil {
				apperrors.WriteError(w, requestID, appErr)
				return
			}

			identity, err := a.Authenticate(r.Context(), token)
			if err != nil {
				appErr := AuthError(err)
				if appErr.Category == apperrors.CategoryServer {
					log.Error(r.Context(), "authentication lookup failed", err)
				}
				apperrors.WriteError(w, requestID, appErr)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin must run after Middleware. Missing identity is 401, a
// non-admin role is 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		requestID := apperrors.GetRequestID(r.Context())
		if identity == nil {
			apperrors.WriteError(w, requestID, apperrors.Unauthorized("not authenticated"))
			return
		}
		if !identity.IsAdmin() {
			apperrors.WriteError(w, requestID, apperrors.Forbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, *apperrors.AppError) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperrors.Unauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.Unauthorized("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// AuthError maps Authenticate failures to client-facing errors.
func AuthError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return apperrors.TokenExpired()
	case errors.Is(err, ErrInvalidToken):
		return apperrors.InvalidToken("invalid access token")
	case errors.Is(err, ErrUnknownUser):
		return apperrors.InvalidToken("user no longer exists")
	default:
		return apperrors.InternalError().WithCause(err)
	}
}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext returns the caller set by Middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}
