package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-blog-platform/internal/model"
	"go-blog-platform/internal/service"
	"go-blog-platform/pkg/apierror"
)

type RoleHandler struct {
	roles *service.RoleService
}

func NewRoleHandler(roles *service.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, roles, &model.Meta{Total: len(roles)})
}

func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, role, nil)
}

func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.CreateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	role, err := h.roles.CreateRole(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, role, nil)
}

func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	role, err := h.roles.UpdateRole(r.Context(), chi.URLParam(r, "roleID"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, role, nil)
}

func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.DeleteRole(r.Context(), chi.URLParam(r, "roleID")); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": true}, nil)
}

func (h *RoleHandler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.SetRolePermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	if err := h.roles.SetRolePermissions(r.Context(), chi.URLParam(r, "roleID"), payload.PermissionIDs); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"updated": true}, nil)
}

func (h *RoleHandler) SetMenus(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.SetRoleMenusRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	if err := h.roles.SetRoleMenus(r.Context(), chi.URLParam(r, "roleID"), payload.MenuIDs); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"updated": true}, nil)
}

func (h *RoleHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.roles.ListPermissions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, perms, &model.Meta{Total: len(perms)})
}

func (h *RoleHandler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.CreatePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	perm, err := h.roles.CreatePermission(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, perm, nil)
}

func (h *RoleHandler) ListMenus(w http.ResponseWriter, r *http.Request) {
	menus, err := h.roles.ListMenus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, menus, &model.Meta{Total: len(menus)})
}

func (h *RoleHandler) CreateMenu(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.CreateMenuRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	menu, err := h.roles.CreateMenu(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, menu, nil)
}
