package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserDisabled       = errors.New("user disabled")
	ErrAccountLocked      = errors.New("account temporarily locked")

	// Token related errors
	ErrTokenNotFound  = errors.New("token not found")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrSessionExpired = errors.New("session expired")

	// RBAC related errors
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleAlreadyExists  = errors.New("role already exists")
	ErrSystemRoleReadOnly = errors.New("system role cannot be modified")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrMenuNotFound       = errors.New("menu not found")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Infrastructure errors
	ErrAuthStoreUnavailable = errors.New("auth store unavailable")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
