package model

import "time"

const (
	RoleStatusEnabled  = "enabled"
	RoleStatusDisabled = "disabled"
)

const (
	PermissionTypeMenu   = "menu"
	PermissionTypeButton = "button"
	PermissionTypeAPI    = "api"
)

const (
	MenuStatusEnabled  = "enabled"
	MenuStatusDisabled = "disabled"
)

type Role struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	IsSystem    bool       `json:"is_system"`
	SortOrder   int        `json:"sort_order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`
}

type Permission struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Resource  string    `json:"resource,omitempty"`
	Action    string    `json:"action,omitempty"`
	Path      string    `json:"path,omitempty"`
	Method    string    `json:"method,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Menu struct {
	ID             string    `json:"id"`
	ParentID       string    `json:"parent_id,omitempty"`
	Name           string    `json:"name"`
	Path           string    `json:"path,omitempty"`
	Icon           string    `json:"icon,omitempty"`
	SortOrder      int       `json:"sort_order"`
	Hidden         bool      `json:"hidden"`
	Status         string    `json:"status"`
	PermissionCode string    `json:"permission_code,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MenuNode is a menu entry with its resolved children, ready for rendering.
type MenuNode struct {
	Menu
	Children []*MenuNode `json:"children,omitempty"`
}

// AccessProfile is the resolved authorization snapshot for one user: the
// codes of the enabled roles they hold, the union of permission codes across
// those roles, and the visible menu tree.
type AccessProfile struct {
	Roles       []string    `json:"roles"`
	Permissions []string    `json:"permissions"`
	Menus       []*MenuNode `json:"menus"`
}

func (p AccessProfile) HasRole(code string) bool {
	for _, c := range p.Roles {
		if c == code {
			return true
		}
	}
	return false
}

func (p AccessProfile) HasAnyRole(codes ...string) bool {
	for _, code := range codes {
		if p.HasRole(code) {
			return true
		}
	}
	return false
}

func (p AccessProfile) HasPermission(code string) bool {
	for _, c := range p.Permissions {
		if c == code {
			return true
		}
	}
	return false
}

// HasAnyPermission implements the OR semantics used by route guards.
func (p AccessProfile) HasAnyPermission(codes ...string) bool {
	for _, code := range codes {
		if p.HasPermission(code) {
			return true
		}
	}
	return false
}

type UserRole struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

type RolePermission struct {
	RoleID       string `json:"role_id"`
	PermissionID string `json:"permission_id"`
}

type RoleMenu struct {
	RoleID string `json:"role_id"`
	MenuID string `json:"menu_id"`
}
