package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-blog-platform/internal/model"
	"go-blog-platform/internal/service"
	"go-blog-platform/pkg/apierror"
)

type UserHandler struct {
	users *service.UserService
	roles *service.RoleService
}

func NewUserHandler(users *service.UserService, roles *service.RoleService) *UserHandler {
	return &UserHandler{users: users, roles: roles}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, users, &model.Meta{Total: len(users)})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.UpdateUserStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	if err := h.users.UpdateStatus(r.Context(), chi.URLParam(r, "userID"), payload.Status); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"updated": true}, nil)
}

// ForceLogout kicks every active session for the user.
func (h *UserHandler) ForceLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.users.ForceLogout(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"revoked": true}, nil)
}

func (h *UserHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	if err := h.roles.AssignRole(r.Context(), chi.URLParam(r, "userID"), payload.RoleID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"assigned": true}, nil)
}

func (h *UserHandler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.RemoveRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID")); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"removed": true}, nil)
}
