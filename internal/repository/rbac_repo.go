package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-blog-platform/internal/model"
)

// RBACRepository provides the flat role/permission/menu reads the resolver
// needs plus the admin mutations that act as cache-invalidation triggers.
type RBACRepository struct {
	pool *pgxpool.Pool
}

func NewRBACRepository(pool *pgxpool.Pool) *RBACRepository {
	return &RBACRepository{pool: pool}
}

// RolesForUser returns only roles that can grant anything: assigned, enabled
// and not soft-deleted.
func (r *RBACRepository) RolesForUser(ctx context.Context, userID string) ([]model.Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ro.id, ro.code, ro.name, ro.description, ro.status, ro.is_system,
		        ro.sort_order, ro.created_at, ro.updated_at
		 FROM roles ro
		 JOIN user_roles ur ON ur.role_id = ro.id
		 WHERE ur.user_id = $1 AND ro.status = $2 AND ro.deleted_at IS NULL
		 ORDER BY ro.sort_order, ro.code`, userID, model.RoleStatusEnabled)
	if err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

func (r *RBACRepository) PermissionsForRole(ctx context.Context, roleID string) ([]model.Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.code, p.name, p.type, p.resource, p.action, p.path, p.method, p.created_at
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = $1
		 ORDER BY p.code`, roleID)
	if err != nil {
		return nil, fmt.Errorf("permissions for role: %w", err)
	}
	defer rows.Close()

	perms := make([]model.Permission, 0)
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.Resource, &p.Action,
			&p.Path, &p.Method, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *RBACRepository) MenusForRole(ctx context.Context, roleID string) ([]model.Menu, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.parent_id, m.name, m.path, m.icon, m.sort_order, m.hidden,
		        m.status, m.permission_code, m.created_at, m.updated_at
		 FROM menus m
		 JOIN role_menus rm ON rm.menu_id = m.id
		 WHERE rm.role_id = $1
		 ORDER BY m.sort_order, m.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("menus for role: %w", err)
	}
	defer rows.Close()

	return scanMenus(rows)
}

// AllMenus backs the admin menu listing; visibility rules apply only at
// resolve time, so disabled and hidden entries show here.
func (r *RBACRepository) AllMenus(ctx context.Context) ([]model.Menu, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, parent_id, name, path, icon, sort_order, hidden,
		        status, permission_code, created_at, updated_at
		 FROM menus ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("list menus: %w", err)
	}
	defer rows.Close()

	return scanMenus(rows)
}

func (r *RBACRepository) CreateRole(ctx context.Context, role model.Role) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO roles (id, code, name, description, status, is_system, sort_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		role.ID, role.Code, role.Name, role.Description, role.Status, role.IsSystem,
		role.SortOrder, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

func (r *RBACRepository) FindRole(ctx context.Context, roleID string) (model.Role, error) {
	var role model.Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, description, status, is_system, sort_order, created_at, updated_at
		 FROM roles WHERE id = $1 AND deleted_at IS NULL`, roleID).
		Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.Status,
			&role.IsSystem, &role.SortOrder, &role.CreatedAt, &role.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Role{}, model.ErrRoleNotFound
	}
	if err != nil {
		return model.Role{}, fmt.Errorf("find role: %w", err)
	}
	return role, nil
}

func (r *RBACRepository) UpdateRole(ctx context.Context, role model.Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET name = $2, description = $3, status = $4, sort_order = $5, updated_at = $6
		 WHERE id = $1 AND deleted_at IS NULL`,
		role.ID, role.Name, role.Description, role.Status, role.SortOrder, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRoleNotFound
	}
	return nil
}

// SoftDeleteRole keeps the row so historic assignments stay referenceable.
func (r *RBACRepository) SoftDeleteRole(ctx context.Context, roleID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		roleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRoleNotFound
	}
	return nil
}

func (r *RBACRepository) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, description, status, is_system, sort_order, created_at, updated_at
		 FROM roles WHERE deleted_at IS NULL ORDER BY sort_order, code`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

func (r *RBACRepository) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set role permissions: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}
	for _, pid := range permissionIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, roleID, pid); err != nil {
			return fmt.Errorf("insert role permission: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *RBACRepository) SetRoleMenus(ctx context.Context, roleID string, menuIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set role menus: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM role_menus WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role menus: %w", err)
	}
	for _, mid := range menuIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_menus (role_id, menu_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, roleID, mid); err != nil {
			return fmt.Errorf("insert role menu: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *RBACRepository) AssignRole(ctx context.Context, userID string, roleID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`, userID, roleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (r *RBACRepository) RemoveRole(ctx context.Context, userID string, roleID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	return nil
}

// UserIDsForRole backs role-level cache invalidation.
func (r *RBACRepository) UserIDsForRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("user ids for role: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RBACRepository) CreatePermission(ctx context.Context, p model.Permission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO permissions (id, code, name, type, resource, action, path, method, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Code, p.Name, p.Type, p.Resource, p.Action, p.Path, p.Method, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

func (r *RBACRepository) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, type, resource, action, path, method, created_at
		 FROM permissions ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]model.Permission, 0)
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.Resource, &p.Action,
			&p.Path, &p.Method, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *RBACRepository) CreateMenu(ctx context.Context, m model.Menu) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO menus (id, parent_id, name, path, icon, sort_order, hidden, status,
		                    permission_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.ParentID, m.Name, m.Path, m.Icon, m.SortOrder, m.Hidden, m.Status,
		m.PermissionCode, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create menu: %w", err)
	}
	return nil
}

func scanRoles(rows pgx.Rows) ([]model.Role, error) {
	roles := make([]model.Role, 0)
	for rows.Next() {
		var ro model.Role
		if err := rows.Scan(&ro.ID, &ro.Code, &ro.Name, &ro.Description, &ro.Status,
			&ro.IsSystem, &ro.SortOrder, &ro.CreatedAt, &ro.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, ro)
	}
	return roles, rows.Err()
}

func scanMenus(rows pgx.Rows) ([]model.Menu, error) {
	menus := make([]model.Menu, 0)
	for rows.Next() {
		var m model.Menu
		if err := rows.Scan(&m.ID, &m.ParentID, &m.Name, &m.Path, &m.Icon, &m.SortOrder,
			&m.Hidden, &m.Status, &m.PermissionCode, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan menu: %w", err)
		}
		menus = append(menus, m)
	}
	return menus, rows.Err()
}
