package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go-blog-platform/internal/model"
)

type testServer struct {
	*httptest.Server
	validAccess  string
	validRefresh string
	logoutCalls  int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{validAccess: "access-1", validRefresh: "refresh-1"}

	writeJSON := func(w http.ResponseWriter, status int, data any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 400, "data": data})
	}
	authed := func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer "+ts.validAccess
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "alice" || req.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, nil)
			return
		}
		writeJSON(w, http.StatusOK, model.TokenPair{
			AccessToken:  ts.validAccess,
			RefreshToken: ts.validRefresh,
			TokenType:    "Bearer",
			User:         model.AuthUser{ID: "u1", Username: "alice", Status: model.UserStatusActive},
		})
	})
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req model.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != ts.validRefresh {
			writeJSON(w, http.StatusUnauthorized, nil)
			return
		}
		ts.validAccess = "access-2"
		ts.validRefresh = "refresh-2"
		writeJSON(w, http.StatusOK, model.TokenPair{
			AccessToken:  ts.validAccess,
			RefreshToken: ts.validRefresh,
			TokenType:    "Bearer",
			User:         model.AuthUser{ID: "u1", Username: "alice", Status: model.UserStatusActive},
		})
	})
	mux.HandleFunc("/api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			writeJSON(w, http.StatusUnauthorized, nil)
			return
		}
		writeJSON(w, http.StatusOK, model.AuthUser{ID: "u1", Username: "alice", Status: model.UserStatusActive})
	})
	mux.HandleFunc("/api/v1/auth/permissions", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			writeJSON(w, http.StatusUnauthorized, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": []string{"posts:read"}})
	})
	mux.HandleFunc("/api/v1/auth/menus", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			writeJSON(w, http.StatusUnauthorized, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"menus": []*model.MenuNode{}})
	})
	mux.HandleFunc("/api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		ts.logoutCalls++
		writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
	})

	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, baseURL string) (*Client, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	return New(baseURL, NewSessionStore(path)), path
}

func TestClient_Login(t *testing.T) {
	t.Parallel()

	t.Run("persists an authenticated session with profile data", func(t *testing.T) {
		srv := newTestServer(t)
		c, path := newTestClient(t, srv.URL)

		require.NoError(t, c.Login(context.Background(), "alice", "secret"))

		session := c.Session()
		require.True(t, session.IsAuthenticated)
		require.NotNil(t, session.User)
		require.Equal(t, "alice", session.User.Username)
		require.Equal(t, []string{"posts:read"}, session.Permissions)
		require.True(t, c.HasPermission("posts:read"))
		require.False(t, c.HasPermission("roles:write"))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var stored Session
		require.NoError(t, json.Unmarshal(raw, &stored))
		require.True(t, stored.IsAuthenticated)
		require.Equal(t, "access-1", stored.AccessToken)
	})

	t.Run("bad credentials leave the client logged out", func(t *testing.T) {
		srv := newTestServer(t)
		c, _ := newTestClient(t, srv.URL)

		err := c.Login(context.Background(), "alice", "wrong")
		require.ErrorIs(t, err, ErrLoginFailed)
		require.False(t, c.Session().IsAuthenticated)
	})
}

func TestClient_Hydrate(t *testing.T) {
	t.Parallel()

	t.Run("no stored session means logged out, no network calls needed", func(t *testing.T) {
		c, _ := newTestClient(t, "http://127.0.0.1:0")

		require.NoError(t, c.Hydrate(context.Background()))
		require.False(t, c.Session().IsAuthenticated)
	})

	t.Run("token without a confirmed user is re-validated against the server", func(t *testing.T) {
		srv := newTestServer(t)
		c, path := newTestClient(t, srv.URL)

		store := NewSessionStore(path)
		require.NoError(t, store.Save(Session{AccessToken: "access-1", RefreshToken: "refresh-1"}))

		require.NoError(t, c.Hydrate(context.Background()))

		session := c.Session()
		require.True(t, session.IsAuthenticated)
		require.NotNil(t, session.User)
		require.Equal(t, "u1", session.User.ID)
		require.Equal(t, []string{"posts:read"}, session.Permissions)
	})

	t.Run("stale access token recovers through the refresh token", func(t *testing.T) {
		srv := newTestServer(t)
		c, path := newTestClient(t, srv.URL)

		store := NewSessionStore(path)
		require.NoError(t, store.Save(Session{AccessToken: "long-gone", RefreshToken: "refresh-1"}))

		require.NoError(t, c.Hydrate(context.Background()))

		session := c.Session()
		require.True(t, session.IsAuthenticated)
		require.Equal(t, "access-2", session.AccessToken)
	})

	t.Run("fully rejected tokens clear the local state", func(t *testing.T) {
		srv := newTestServer(t)
		c, path := newTestClient(t, srv.URL)

		store := NewSessionStore(path)
		require.NoError(t, store.Save(Session{AccessToken: "long-gone", RefreshToken: "also-gone"}))

		require.NoError(t, c.Hydrate(context.Background()))
		require.False(t, c.Session().IsAuthenticated)
		require.Empty(t, c.Session().AccessToken)

		reloaded, err := store.Load()
		require.NoError(t, err)
		require.False(t, reloaded.IsAuthenticated)
		require.Empty(t, reloaded.AccessToken)
	})

	t.Run("confirmed stored session is trusted without refetching", func(t *testing.T) {
		// Unreachable server proves no request is made.
		c, path := newTestClient(t, "http://127.0.0.1:0")

		store := NewSessionStore(path)
		user := model.AuthUser{ID: "u1", Username: "alice", Status: model.UserStatusActive}
		require.NoError(t, store.Save(Session{
			User:            &user,
			AccessToken:     "access-1",
			RefreshToken:    "refresh-1",
			IsAuthenticated: true,
		}))

		require.NoError(t, c.Hydrate(context.Background()))
		require.True(t, c.Session().IsAuthenticated)
	})
}

func TestClient_Do(t *testing.T) {
	t.Parallel()

	t.Run("attaches the bearer token", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		c, path := newTestClient(t, srv.URL)
		store := NewSessionStore(path)
		user := model.AuthUser{ID: "u1", Username: "alice", Status: model.UserStatusActive}
		require.NoError(t, store.Save(Session{User: &user, AccessToken: "tok", IsAuthenticated: true}))
		require.NoError(t, c.Hydrate(context.Background()))

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/anything", nil)
		require.NoError(t, err)
		resp, err := c.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, "Bearer tok", gotAuth)
	})

	t.Run("refuses to send without an authenticated session", func(t *testing.T) {
		c, _ := newTestClient(t, "http://127.0.0.1:0")
		require.NoError(t, c.Hydrate(context.Background()))

		req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:0/", nil)
		require.NoError(t, err)
		_, err = c.Do(req)
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})
}

func TestClient_Logout(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c, path := newTestClient(t, srv.URL)

	require.NoError(t, c.Login(context.Background(), "alice", "secret"))
	require.NoError(t, c.Logout(context.Background()))

	require.Equal(t, 1, srv.logoutCalls)
	require.False(t, c.Session().IsAuthenticated)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored Session
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Empty(t, stored.AccessToken)
}
