package service

import (
	"context"
	"log/slog"
	"sort"

	"go-blog-platform/internal/model"
)

type rbacReader interface {
	RolesForUser(ctx context.Context, userID string) ([]model.Role, error)
	PermissionsForRole(ctx context.Context, roleID string) ([]model.Permission, error)
	MenusForRole(ctx context.Context, roleID string) ([]model.Menu, error)
	UserIDsForRole(ctx context.Context, roleID string) ([]string, error)
}

type profileCache interface {
	Get(ctx context.Context, key string) (model.AccessProfile, bool, error)
	Set(ctx context.Context, key string, value model.AccessProfile) error
	Delete(ctx context.Context, keys ...string) error
}

// AccessService resolves a user's effective permission set and menu tree.
// Results are cached with a short TTL; the cache is an optimization only.
// Token validity and account status are enforced independently by the
// guards, so a stale profile can never resurrect a revoked session.
type AccessService struct {
	rbac  rbacReader
	cache profileCache
}

func NewAccessService(rbac rbacReader, cache profileCache) *AccessService {
	return &AccessService{rbac: rbac, cache: cache}
}

func (s *AccessService) Resolve(ctx context.Context, userID string) (model.AccessProfile, error) {
	if s.cache != nil {
		profile, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			// Cache trouble is not an authorization failure; recompute.
			slog.Warn("access cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return profile, nil
		}
	}

	profile, err := s.resolve(ctx, userID)
	if err != nil {
		return model.AccessProfile{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, profile); err != nil {
			slog.Warn("access cache write failed", "user_id", userID, "error", err)
		}
	}
	return profile, nil
}

// Invalidate drops the cached profile after a role assignment or status
// change so the next request recomputes.
func (s *AccessService) Invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil || len(userIDs) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, userIDs...); err != nil {
		slog.Warn("access cache invalidation failed", "error", err)
	}
}

// InvalidateRole drops the cached profile of every user holding the role.
func (s *AccessService) InvalidateRole(ctx context.Context, roleID string) {
	userIDs, err := s.rbac.UserIDsForRole(ctx, roleID)
	if err != nil {
		slog.Warn("could not list users for role invalidation", "role_id", roleID, "error", err)
		return
	}
	s.Invalidate(ctx, userIDs...)
}

func (s *AccessService) resolve(ctx context.Context, userID string) (model.AccessProfile, error) {
	roles, err := s.rbac.RolesForUser(ctx, userID)
	if err != nil {
		return model.AccessProfile{}, err
	}

	roleCodes := make([]string, 0, len(roles))
	permSet := make(map[string]struct{})
	menuByID := make(map[string]model.Menu)
	for _, role := range roles {
		roleCodes = append(roleCodes, role.Code)
		perms, err := s.rbac.PermissionsForRole(ctx, role.ID)
		if err != nil {
			return model.AccessProfile{}, err
		}
		for _, p := range perms {
			permSet[p.Code] = struct{}{}
		}

		menus, err := s.rbac.MenusForRole(ctx, role.ID)
		if err != nil {
			return model.AccessProfile{}, err
		}
		for _, m := range menus {
			menuByID[m.ID] = m
		}
	}

	permissions := make([]string, 0, len(permSet))
	for code := range permSet {
		permissions = append(permissions, code)
	}
	sort.Strings(permissions)

	sort.Strings(roleCodes)

	return model.AccessProfile{
		Roles:       roleCodes,
		Permissions: permissions,
		Menus:       buildMenuTree(menuByID),
	}, nil
}

// buildMenuTree links flat menu rows into a tree by parent id. Disabled and
// hidden nodes are dropped, and so is any node whose ancestor chain does not
// reach a root, so an orphan never surfaces and never loops.
func buildMenuTree(menuByID map[string]model.Menu) []*model.MenuNode {
	visible := make(map[string]*model.MenuNode, len(menuByID))
	for id, m := range menuByID {
		if m.Status != model.MenuStatusEnabled || m.Hidden {
			continue
		}
		visible[id] = &model.MenuNode{Menu: m}
	}

	roots := make([]*model.MenuNode, 0)
	for _, node := range visible {
		if node.ParentID == "" {
			roots = append(roots, node)
			continue
		}
		if parent, ok := visible[node.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
		// Parent missing or pruned: the subtree stays unreachable.
	}

	sortMenuNodes(roots)
	return roots
}

func sortMenuNodes(nodes []*model.MenuNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		return nodes[i].Name < nodes[j].Name
	})
	for _, n := range nodes {
		sortMenuNodes(n.Children)
	}
}
