package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"go-blog-platform/internal/model"
)

type fakeRBAC struct {
	roles       map[string][]model.Role
	permissions map[string][]model.Permission
	menus       map[string][]model.Menu
	roleMembers map[string][]string
	err         error
}

func (f *fakeRBAC) RolesForUser(_ context.Context, userID string) ([]model.Role, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.roles[userID], nil
}

func (f *fakeRBAC) PermissionsForRole(_ context.Context, roleID string) ([]model.Permission, error) {
	return f.permissions[roleID], nil
}

func (f *fakeRBAC) MenusForRole(_ context.Context, roleID string) ([]model.Menu, error) {
	return f.menus[roleID], nil
}

func (f *fakeRBAC) UserIDsForRole(_ context.Context, roleID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.roleMembers[roleID], nil
}

type fakeProfileCache struct {
	values  map[string]model.AccessProfile
	getErr  error
	setErr  error
	deleted []string
}

func newFakeProfileCache() *fakeProfileCache {
	return &fakeProfileCache{values: map[string]model.AccessProfile{}}
}

func (f *fakeProfileCache) Get(_ context.Context, key string) (model.AccessProfile, bool, error) {
	if f.getErr != nil {
		return model.AccessProfile{}, false, f.getErr
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeProfileCache) Set(_ context.Context, key string, value model.AccessProfile) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	return nil
}

func (f *fakeProfileCache) Delete(_ context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys...)
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func TestAccessService_Resolve(t *testing.T) {
	t.Parallel()

	t.Run("unions permissions across roles without duplicates", func(t *testing.T) {
		rbac := &fakeRBAC{
			roles: map[string][]model.Role{
				"u1": {{ID: "r1", Code: "editor"}, {ID: "r2", Code: "author"}},
			},
			permissions: map[string][]model.Permission{
				"r1": {{Code: "posts:read"}, {Code: "posts:write"}},
				"r2": {{Code: "posts:read"}, {Code: "comments:read"}},
			},
		}
		svc := NewAccessService(rbac, nil)

		profile, err := svc.Resolve(context.Background(), "u1")
		require.NoError(t, err)
		require.Equal(t, []string{"author", "editor"}, profile.Roles)
		require.Equal(t, []string{"comments:read", "posts:read", "posts:write"}, profile.Permissions)
	})

	t.Run("user with no roles gets an empty profile, not an error", func(t *testing.T) {
		svc := NewAccessService(&fakeRBAC{}, nil)

		profile, err := svc.Resolve(context.Background(), "nobody")
		require.NoError(t, err)
		require.Empty(t, profile.Permissions)
		require.Empty(t, profile.Menus)
	})

	t.Run("caches the resolved profile and serves hits from cache", func(t *testing.T) {
		rbac := &fakeRBAC{
			roles:       map[string][]model.Role{"u1": {{ID: "r1"}}},
			permissions: map[string][]model.Permission{"r1": {{Code: "posts:read"}}},
		}
		cache := newFakeProfileCache()
		svc := NewAccessService(rbac, cache)

		_, err := svc.Resolve(context.Background(), "u1")
		require.NoError(t, err)
		require.Contains(t, cache.values, "u1")

		// A changed backend does not show through the cache until invalidation.
		rbac.permissions["r1"] = nil
		profile, err := svc.Resolve(context.Background(), "u1")
		require.NoError(t, err)
		require.Equal(t, []string{"posts:read"}, profile.Permissions)
	})

	t.Run("recomputes when the cache errors", func(t *testing.T) {
		rbac := &fakeRBAC{
			roles:       map[string][]model.Role{"u1": {{ID: "r1"}}},
			permissions: map[string][]model.Permission{"r1": {{Code: "posts:read"}}},
		}
		cache := newFakeProfileCache()
		cache.getErr = errors.New("redis down")
		svc := NewAccessService(rbac, cache)

		profile, err := svc.Resolve(context.Background(), "u1")
		require.NoError(t, err)
		require.Equal(t, []string{"posts:read"}, profile.Permissions)
	})

	t.Run("propagates role store errors", func(t *testing.T) {
		svc := NewAccessService(&fakeRBAC{err: errors.New("db down")}, nil)

		_, err := svc.Resolve(context.Background(), "u1")
		require.Error(t, err)
	})
}

func TestAccessService_Invalidation(t *testing.T) {
	t.Parallel()

	t.Run("Invalidate drops the named profiles", func(t *testing.T) {
		cache := newFakeProfileCache()
		cache.values["u1"] = model.AccessProfile{}
		cache.values["u2"] = model.AccessProfile{}
		svc := NewAccessService(&fakeRBAC{}, cache)

		svc.Invalidate(context.Background(), "u1", "u2")
		require.ElementsMatch(t, []string{"u1", "u2"}, cache.deleted)
	})

	t.Run("InvalidateRole drops every member of the role", func(t *testing.T) {
		rbac := &fakeRBAC{roleMembers: map[string][]string{"r1": {"u1", "u3"}}}
		cache := newFakeProfileCache()
		svc := NewAccessService(rbac, cache)

		svc.InvalidateRole(context.Background(), "r1")
		require.ElementsMatch(t, []string{"u1", "u3"}, cache.deleted)
	})
}

func TestBuildMenuTree(t *testing.T) {
	t.Parallel()

	menu := func(id, parent, name string, order int) model.Menu {
		return model.Menu{ID: id, ParentID: parent, Name: name, SortOrder: order, Status: model.MenuStatusEnabled}
	}

	t.Run("links children under parents and sorts by sort order then name", func(t *testing.T) {
		menus := map[string]model.Menu{
			"root2":  menu("root2", "", "Settings", 2),
			"root1":  menu("root1", "", "Dashboard", 1),
			"child2": menu("child2", "root2", "Roles", 2),
			"child1": menu("child1", "root2", "Users", 1),
		}

		tree := buildMenuTree(menus)
		require.Len(t, tree, 2)
		require.Equal(t, "Dashboard", tree[0].Name)
		require.Equal(t, "Settings", tree[1].Name)
		require.Len(t, tree[1].Children, 2)
		require.Equal(t, "Users", tree[1].Children[0].Name)
		require.Equal(t, "Roles", tree[1].Children[1].Name)
	})

	t.Run("equal sort order falls back to name", func(t *testing.T) {
		menus := map[string]model.Menu{
			"b": menu("b", "", "Bravo", 1),
			"a": menu("a", "", "Alpha", 1),
		}

		tree := buildMenuTree(menus)
		require.Len(t, tree, 2)
		require.Equal(t, "Alpha", tree[0].Name)
		require.Equal(t, "Bravo", tree[1].Name)
	})

	t.Run("drops disabled and hidden nodes with their subtrees", func(t *testing.T) {
		disabled := menu("off", "", "Disabled", 1)
		disabled.Status = model.MenuStatusDisabled
		hidden := menu("hid", "", "Hidden", 2)
		hidden.Hidden = true

		menus := map[string]model.Menu{
			"off":      disabled,
			"hid":      hidden,
			"offchild": menu("offchild", "off", "Orphaned", 1),
			"ok":       menu("ok", "", "Visible", 3),
		}

		tree := buildMenuTree(menus)
		require.Len(t, tree, 1)
		require.Equal(t, "Visible", tree[0].Name)
		require.Empty(t, tree[0].Children)
	})

	t.Run("node whose parent is not granted never surfaces", func(t *testing.T) {
		menus := map[string]model.Menu{
			"child": menu("child", "missing-parent", "Stranded", 1),
			"root":  menu("root", "", "Home", 1),
		}

		tree := buildMenuTree(menus)
		require.Len(t, tree, 1)
		require.Equal(t, "Home", tree[0].Name)
	})
}
