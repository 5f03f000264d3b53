package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go-blog-platform/internal/metrics"
	"go-blog-platform/internal/model"
)

type tokenValidator interface {
	ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error)
}

type revocationChecker interface {
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
	IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

type userLoader interface {
	GetUserByID(ctx context.Context, userID string) (model.AuthUser, error)
}

type accessResolver interface {
	Resolve(ctx context.Context, userID string) (model.AccessProfile, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

// AuthMiddleware is the request guard. Authorize checks, in order: signature
// and expiry, per-token revocation, the user's logout watermark, then account
// status. A token that fails an earlier step never reaches a later one, and a
// revocation-store error rejects the request rather than letting a possibly
// revoked token through.
type AuthMiddleware struct {
	validator   tokenValidator
	revocations revocationChecker
	users       userLoader
	access      accessResolver
}

func NewAuthMiddleware(validator tokenValidator, revocations revocationChecker, users userLoader, access accessResolver) *AuthMiddleware {
	return &AuthMiddleware{
		validator:   validator,
		revocations: revocations,
		users:       users,
		access:      access,
	}
}

// Authorize runs the full session check on a raw access token and returns the
// claims on success. The WebSocket handshake uses it too, so HTTP requests
// and socket upgrades cannot drift apart in what they accept.
func (m *AuthMiddleware) Authorize(ctx context.Context, token string) (*model.AuthClaims, error) {
	claims, err := m.validator.ValidateToken(token, "access")
	if err != nil {
		return nil, model.ErrUnauthorized
	}

	revoked, err := m.revocations.IsTokenRevoked(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAuthStoreUnavailable, err)
	}
	if revoked {
		return nil, model.ErrTokenRevoked
	}

	revoked, err = m.revocations.IsUserRevoked(ctx, claims.UserID, time.Unix(claims.IssuedAt, 0))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAuthStoreUnavailable, err)
	}
	if revoked {
		return nil, model.ErrTokenRevoked
	}

	user, err := m.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %w", model.ErrAuthStoreUnavailable, err)
	}
	if user.Status != model.UserStatusActive {
		return nil, model.ErrUserDisabled
	}

	return claims, nil
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			metrics.AuthDecisions.WithLabelValues("unauthorized").Inc()
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		claims, err := m.Authorize(r.Context(), token)
		if err != nil {
			m.writeRejection(w, err)
			return
		}

		metrics.AuthDecisions.WithLabelValues("allowed").Inc()
		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermissions allows the request when the caller holds at least one of
// the listed permission codes. It must run after RequireAuth.
func (m *AuthMiddleware) RequirePermissions(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				metrics.AuthDecisions.WithLabelValues("unauthorized").Inc()
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			profile, err := m.access.Resolve(r.Context(), claims.UserID)
			if err != nil {
				m.writeRejection(w, fmt.Errorf("%w: %w", model.ErrAuthStoreUnavailable, err))
				return
			}

			if !profile.HasAnyPermission(codes...) {
				metrics.AuthDecisions.WithLabelValues("forbidden").Inc()
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoles allows the request when the caller holds at least one of the
// listed role codes. Catalog surfaces use it where no permission code can
// exist yet, such as defining new permission codes themselves.
func (m *AuthMiddleware) RequireRoles(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				metrics.AuthDecisions.WithLabelValues("unauthorized").Inc()
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			profile, err := m.access.Resolve(r.Context(), claims.UserID)
			if err != nil {
				m.writeRejection(w, fmt.Errorf("%w: %w", model.ErrAuthStoreUnavailable, err))
				return
			}

			if !profile.HasAnyRole(codes...) {
				metrics.AuthDecisions.WithLabelValues("forbidden").Inc()
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

// ContextWithClaims is used by handlers' tests to inject an authenticated
// session without running the full guard.
func ContextWithClaims(ctx context.Context, claims *model.AuthClaims) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func (m *AuthMiddleware) writeRejection(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrAuthStoreUnavailable):
		metrics.AuthDecisions.WithLabelValues("store_unavailable").Inc()
		slog.Error("auth store unavailable", "error", err)
		writeAuthError(w, http.StatusServiceUnavailable, "AUTH_STORE_UNAVAILABLE", "authorization temporarily unavailable")
	case errors.Is(err, model.ErrTokenRevoked):
		metrics.AuthDecisions.WithLabelValues("revoked").Inc()
		writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
	case errors.Is(err, model.ErrUserDisabled):
		metrics.AuthDecisions.WithLabelValues("unauthorized").Inc()
		writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "account is not active")
	default:
		metrics.AuthDecisions.WithLabelValues("unauthorized").Inc()
		writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
	}
}

func writeAuthError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonEncode(w, model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}
