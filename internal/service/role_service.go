package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-blog-platform/internal/event"
	"go-blog-platform/internal/model"
)

type rbacAdmin interface {
	rbacReader
	CreateRole(ctx context.Context, role model.Role) error
	FindRole(ctx context.Context, roleID string) (model.Role, error)
	UpdateRole(ctx context.Context, role model.Role) error
	SoftDeleteRole(ctx context.Context, roleID string) error
	ListRoles(ctx context.Context) ([]model.Role, error)
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
	SetRoleMenus(ctx context.Context, roleID string, menuIDs []string) error
	AssignRole(ctx context.Context, userID string, roleID string) error
	RemoveRole(ctx context.Context, userID string, roleID string) error
	CreatePermission(ctx context.Context, p model.Permission) error
	ListPermissions(ctx context.Context) ([]model.Permission, error)
	CreateMenu(ctx context.Context, m model.Menu) error
	AllMenus(ctx context.Context) ([]model.Menu, error)
}

// RoleService owns role/permission/menu administration. Every mutation that
// can change what a user is allowed to do invalidates the affected cached
// access profiles.
type RoleService struct {
	rbac   rbacAdmin
	access *AccessService
	bus    event.Bus
}

func NewRoleService(rbac rbacAdmin, access *AccessService, bus event.Bus) *RoleService {
	return &RoleService{rbac: rbac, access: access, bus: bus}
}

func (s *RoleService) CreateRole(ctx context.Context, req model.CreateRoleRequest) (model.Role, error) {
	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return model.Role{}, model.ErrInvalidInput
	}

	now := time.Now().UTC()
	role := model.Role{
		ID:          uuid.NewString(),
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Status:      model.RoleStatusEnabled,
		SortOrder:   req.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.rbac.CreateRole(ctx, role); err != nil {
		return model.Role{}, err
	}
	return role, nil
}

func (s *RoleService) GetRole(ctx context.Context, roleID string) (model.Role, error) {
	return s.rbac.FindRole(ctx, roleID)
}

func (s *RoleService) ListRoles(ctx context.Context) ([]model.Role, error) {
	return s.rbac.ListRoles(ctx)
}

func (s *RoleService) UpdateRole(ctx context.Context, roleID string, req model.UpdateRoleRequest) (model.Role, error) {
	role, err := s.rbac.FindRole(ctx, roleID)
	if err != nil {
		return model.Role{}, err
	}
	if role.IsSystem {
		return model.Role{}, model.ErrSystemRoleReadOnly
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return model.Role{}, model.ErrInvalidInput
		}
		role.Name = name
	}
	if req.Description != nil {
		role.Description = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		status := strings.TrimSpace(strings.ToLower(*req.Status))
		if status != model.RoleStatusEnabled && status != model.RoleStatusDisabled {
			return model.Role{}, model.ErrInvalidInput
		}
		role.Status = status
	}
	if req.SortOrder != nil {
		role.SortOrder = *req.SortOrder
	}

	if err := s.rbac.UpdateRole(ctx, role); err != nil {
		return model.Role{}, err
	}

	s.invalidateRole(ctx, roleID)
	return role, nil
}

func (s *RoleService) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.rbac.FindRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return model.ErrSystemRoleReadOnly
	}

	// Invalidate before the delete loses the membership rows.
	s.access.InvalidateRole(ctx, roleID)

	if err := s.rbac.SoftDeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.publishRoleUpdated(roleID)
	return nil
}

func (s *RoleService) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	role, err := s.rbac.FindRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return model.ErrSystemRoleReadOnly
	}

	if err := s.rbac.SetRolePermissions(ctx, roleID, dedupe(permissionIDs)); err != nil {
		return err
	}
	s.invalidateRole(ctx, roleID)
	return nil
}

func (s *RoleService) SetRoleMenus(ctx context.Context, roleID string, menuIDs []string) error {
	role, err := s.rbac.FindRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return model.ErrSystemRoleReadOnly
	}

	if err := s.rbac.SetRoleMenus(ctx, roleID, dedupe(menuIDs)); err != nil {
		return err
	}
	s.invalidateRole(ctx, roleID)
	return nil
}

func (s *RoleService) AssignRole(ctx context.Context, userID string, roleID string) error {
	if _, err := s.rbac.FindRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.rbac.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.access.Invalidate(ctx, userID)
	return nil
}

func (s *RoleService) RemoveRole(ctx context.Context, userID string, roleID string) error {
	if err := s.rbac.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.access.Invalidate(ctx, userID)
	return nil
}

func (s *RoleService) CreatePermission(ctx context.Context, req model.CreatePermissionRequest) (model.Permission, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return model.Permission{}, model.ErrInvalidInput
	}
	typ := strings.TrimSpace(strings.ToLower(req.Type))
	switch typ {
	case model.PermissionTypeMenu, model.PermissionTypeButton, model.PermissionTypeAPI:
	case "":
		typ = model.PermissionTypeAPI
	default:
		return model.Permission{}, model.ErrInvalidInput
	}

	perm := model.Permission{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      strings.TrimSpace(req.Name),
		Type:      typ,
		Resource:  strings.TrimSpace(req.Resource),
		Action:    strings.TrimSpace(req.Action),
		Path:      strings.TrimSpace(req.Path),
		Method:    strings.ToUpper(strings.TrimSpace(req.Method)),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.rbac.CreatePermission(ctx, perm); err != nil {
		return model.Permission{}, err
	}
	return perm, nil
}

func (s *RoleService) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	return s.rbac.ListPermissions(ctx)
}

func (s *RoleService) CreateMenu(ctx context.Context, req model.CreateMenuRequest) (model.Menu, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.Menu{}, model.ErrInvalidInput
	}

	now := time.Now().UTC()
	menu := model.Menu{
		ID:             uuid.NewString(),
		ParentID:       strings.TrimSpace(req.ParentID),
		Name:           name,
		Path:           strings.TrimSpace(req.Path),
		Icon:           strings.TrimSpace(req.Icon),
		SortOrder:      req.SortOrder,
		Hidden:         req.Hidden,
		Status:         model.MenuStatusEnabled,
		PermissionCode: strings.TrimSpace(req.PermissionCode),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.rbac.CreateMenu(ctx, menu); err != nil {
		return model.Menu{}, err
	}
	return menu, nil
}

func (s *RoleService) ListMenus(ctx context.Context) ([]model.Menu, error) {
	return s.rbac.AllMenus(ctx)
}

func (s *RoleService) invalidateRole(ctx context.Context, roleID string) {
	s.access.InvalidateRole(ctx, roleID)
	s.publishRoleUpdated(roleID)
}

func (s *RoleService) publishRoleUpdated(roleID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      event.TypeRoleUpdated,
		Payload:   map[string]string{"role_id": roleID},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
