package model

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type CreateRoleRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

type UpdateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	SortOrder   *int    `json:"sort_order"`
}

type SetRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

type SetRoleMenusRequest struct {
	MenuIDs []string `json:"menu_ids"`
}

type AssignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type UpdateUserStatusRequest struct {
	Status string `json:"status"`
}

type CreatePermissionRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Path     string `json:"path"`
	Method   string `json:"method"`
}

type CreateMenuRequest struct {
	ParentID       string `json:"parent_id"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	Icon           string `json:"icon"`
	SortOrder      int    `json:"sort_order"`
	Hidden         bool   `json:"hidden"`
	PermissionCode string `json:"permission_code"`
}
