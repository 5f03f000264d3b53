package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-blog-platform/internal/model"
)

type fakeValidator struct {
	claims map[string]*model.AuthClaims
	calls  int
}

func (f *fakeValidator) ValidateToken(token string, expectedType string) (*model.AuthClaims, error) {
	f.calls++
	claims, ok := f.claims[token]
	if !ok || claims.Type != expectedType {
		return nil, model.ErrUnauthorized
	}
	return claims, nil
}

type fakeRevocations struct {
	revokedTokens  map[string]bool
	userWatermarks map[string]int64
	err            error

	tokenCalls int
	userCalls  int
}

func (f *fakeRevocations) IsTokenRevoked(_ context.Context, token string) (bool, error) {
	f.tokenCalls++
	if f.err != nil {
		return false, f.err
	}
	return f.revokedTokens[token], nil
}

func (f *fakeRevocations) IsUserRevoked(_ context.Context, userID string, issuedAt time.Time) (bool, error) {
	f.userCalls++
	if f.err != nil {
		return false, f.err
	}
	watermark, ok := f.userWatermarks[userID]
	if !ok {
		return false, nil
	}
	return issuedAt.UTC().Unix() <= watermark, nil
}

type fakeUsers struct {
	users map[string]model.AuthUser
	calls int
}

func (f *fakeUsers) GetUserByID(_ context.Context, userID string) (model.AuthUser, error) {
	f.calls++
	user, ok := f.users[userID]
	if !ok {
		return model.AuthUser{}, model.ErrUserNotFound
	}
	return user, nil
}

type fakeAccess struct {
	profiles map[string]model.AccessProfile
	err      error
}

func (f *fakeAccess) Resolve(_ context.Context, userID string) (model.AccessProfile, error) {
	if f.err != nil {
		return model.AccessProfile{}, f.err
	}
	return f.profiles[userID], nil
}

type guardFixture struct {
	guard       *AuthMiddleware
	validator   *fakeValidator
	revocations *fakeRevocations
	users       *fakeUsers
	access      *fakeAccess
}

func newGuardFixture() *guardFixture {
	now := time.Now().UTC()
	validator := &fakeValidator{claims: map[string]*model.AuthClaims{
		"good-token": {
			UserID:   "u1",
			Username: "alice",
			Type:     "access",
			IssuedAt: now.Unix(),
			Expiry:   now.Add(time.Hour).Unix(),
		},
	}}
	revocations := &fakeRevocations{
		revokedTokens:  map[string]bool{},
		userWatermarks: map[string]int64{},
	}
	users := &fakeUsers{users: map[string]model.AuthUser{
		"u1": {ID: "u1", Username: "alice", Status: model.UserStatusActive},
	}}
	access := &fakeAccess{profiles: map[string]model.AccessProfile{
		"u1": {Roles: []string{"editor"}, Permissions: []string{"posts:read"}},
	}}

	return &guardFixture{
		guard:       NewAuthMiddleware(validator, revocations, users, access),
		validator:   validator,
		revocations: revocations,
		users:       users,
		access:      access,
	}
}

func serveGuarded(f *guardFixture, token string) *httptest.ResponseRecorder {
	handler := f.guard.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	t.Run("valid token passes and claims reach the handler", func(t *testing.T) {
		f := newGuardFixture()

		var got *model.AuthClaims
		handler := f.guard.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = ClaimsFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
		require.Equal(t, "u1", got.UserID)
	})

	t.Run("missing header is rejected before any lookup", func(t *testing.T) {
		f := newGuardFixture()

		rec := serveGuarded(f, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Zero(t, f.validator.calls)
		require.Zero(t, f.revocations.tokenCalls)
	})

	t.Run("invalid signature is rejected before revocation lookups", func(t *testing.T) {
		f := newGuardFixture()

		rec := serveGuarded(f, "garbage")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, 1, f.validator.calls)
		require.Zero(t, f.revocations.tokenCalls)
		require.Zero(t, f.users.calls)
	})

	t.Run("revoked token is rejected before the watermark lookup", func(t *testing.T) {
		f := newGuardFixture()
		f.revocations.revokedTokens["good-token"] = true

		rec := serveGuarded(f, "good-token")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, 1, f.revocations.tokenCalls)
		require.Zero(t, f.revocations.userCalls)
		require.Zero(t, f.users.calls)
	})

	t.Run("token older than the user watermark is rejected before user load", func(t *testing.T) {
		f := newGuardFixture()
		f.revocations.userWatermarks["u1"] = time.Now().Add(time.Hour).Unix()

		rec := serveGuarded(f, "good-token")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, 1, f.revocations.userCalls)
		require.Zero(t, f.users.calls)
	})

	t.Run("revocation store outage yields 503, not a pass", func(t *testing.T) {
		f := newGuardFixture()
		f.revocations.err = errors.New("redis down")

		rec := serveGuarded(f, "good-token")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Contains(t, rec.Body.String(), "AUTH_STORE_UNAVAILABLE")
	})

	t.Run("banned user is rejected with 401", func(t *testing.T) {
		f := newGuardFixture()
		f.users.users["u1"] = model.AuthUser{ID: "u1", Username: "alice", Status: model.UserStatusBanned}

		rec := serveGuarded(f, "good-token")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deleted user is rejected with 401", func(t *testing.T) {
		f := newGuardFixture()
		delete(f.users.users, "u1")

		rec := serveGuarded(f, "good-token")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequirePermissions(t *testing.T) {
	t.Parallel()

	serve := func(f *guardFixture, codes ...string) *httptest.ResponseRecorder {
		handler := f.guard.RequireAuth(
			f.guard.RequirePermissions(codes...)(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("any one matching permission is enough", func(t *testing.T) {
		f := newGuardFixture()

		rec := serve(f, "posts:admin", "posts:read")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("authenticated but unpermitted gets 403, not 401", func(t *testing.T) {
		f := newGuardFixture()

		rec := serve(f, "roles:write")
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "FORBIDDEN")
	})

	t.Run("unauthenticated gets 401, not 403", func(t *testing.T) {
		f := newGuardFixture()

		handler := f.guard.RequireAuth(
			f.guard.RequirePermissions("roles:write")(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("profile resolution failure yields 503", func(t *testing.T) {
		f := newGuardFixture()
		f.access.err = errors.New("db down")

		rec := serve(f, "posts:read")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRequireRoles(t *testing.T) {
	t.Parallel()

	serve := func(f *guardFixture, codes ...string) *httptest.ResponseRecorder {
		handler := f.guard.RequireAuth(
			f.guard.RequireRoles(codes...)(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("any one matching role is enough", func(t *testing.T) {
		f := newGuardFixture()

		rec := serve(f, "admin", "editor")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("authenticated without the role gets 403", func(t *testing.T) {
		f := newGuardFixture()

		rec := serve(f, "admin")
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("permissions do not stand in for roles", func(t *testing.T) {
		f := newGuardFixture()

		rec := serve(f, "posts:read")
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}
