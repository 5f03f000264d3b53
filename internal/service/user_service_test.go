package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-blog-platform/internal/model"
)

func (s *fakeUserStore) UpdateStatus(_ context.Context, userID string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID].Status = status
	return nil
}

func (s *fakeUserStore) List(_ context.Context) ([]model.AuthUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuthUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, model.AuthUser{ID: u.ID, Username: u.Username, Status: u.Status})
	}
	return out, nil
}

func userFixture(t *testing.T) (*UserService, *authFixture, *fakeProfileCache) {
	t.Helper()

	f := newAuthFixture(t, testUser(t, "u1", "alice", "correct horse"))
	cache := newFakeProfileCache()
	access := NewAccessService(&fakeRBAC{}, cache)
	svc := NewUserService(f.users, f.svc, access, nil)
	return svc, f, cache
}

func TestUserService_UpdateStatus(t *testing.T) {
	t.Parallel()

	t.Run("rejects unknown status values", func(t *testing.T) {
		svc, _, _ := userFixture(t)

		err := svc.UpdateStatus(context.Background(), "u1", "suspended")
		require.ErrorIs(t, err, model.ErrInvalidInput)
	})

	t.Run("rejects unknown users", func(t *testing.T) {
		svc, _, _ := userFixture(t)

		err := svc.UpdateStatus(context.Background(), "ghost", model.UserStatusBanned)
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})

	t.Run("banning revokes every session and drops the cached profile", func(t *testing.T) {
		svc, f, cache := userFixture(t)
		ctx := context.Background()

		pair, err := f.svc.Login(ctx, "alice", "correct horse")
		require.NoError(t, err)
		cache.values["u1"] = model.AccessProfile{}

		f.advance(time.Second)
		require.NoError(t, svc.UpdateStatus(ctx, "u1", model.UserStatusBanned))

		claims, err := f.svc.ValidateToken(pair.AccessToken, "access")
		require.NoError(t, err)
		revoked, err := f.blacklist.IsUserRevoked(ctx, "u1", time.Unix(claims.IssuedAt, 0))
		require.NoError(t, err)
		require.True(t, revoked)

		_, err = f.tokens.Validate(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, model.ErrTokenNotFound)
		require.Contains(t, cache.deleted, "u1")
	})

	t.Run("reactivating does not revoke anything", func(t *testing.T) {
		svc, f, cache := userFixture(t)
		ctx := context.Background()

		pair, err := f.svc.Login(ctx, "alice", "correct horse")
		require.NoError(t, err)

		require.NoError(t, svc.UpdateStatus(ctx, "u1", model.UserStatusActive))

		claims, err := f.svc.ValidateToken(pair.AccessToken, "access")
		require.NoError(t, err)
		revoked, err := f.blacklist.IsUserRevoked(ctx, "u1", time.Unix(claims.IssuedAt, 0))
		require.NoError(t, err)
		require.False(t, revoked)
		require.Empty(t, cache.deleted)
	})
}

func TestUserService_ForceLogout(t *testing.T) {
	t.Parallel()

	svc, f, _ := userFixture(t)
	ctx := context.Background()

	pair, err := f.svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	f.advance(time.Second)
	require.NoError(t, svc.ForceLogout(ctx, "u1"))

	_, err = f.tokens.Validate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, model.ErrTokenNotFound)

	require.ErrorIs(t, svc.ForceLogout(ctx, "ghost"), model.ErrUserNotFound)
}
