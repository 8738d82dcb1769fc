package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"projectplane/internal/model"
	"projectplane/pkg/api"
)

// CreateUser handles POST /api/users: tenant-level user creation. While the
// tenant has no admin, the first caller may create themselves as admin;
// after that only admins may manage users.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	h.setTenantUser(w, r, model.CommandTeamCloudUserCreate)
}

// UpdateUser handles PUT /api/users/{id}.
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	h.setTenantUser(w, r, model.CommandTeamCloudUserUpdate)
}

func (h *Handlers) setTenantUser(w http.ResponseWriter, r *http.Request, commandType model.CommandType) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}

	def, ok := h.decodeUserDefinition(w, r)
	if !ok {
		return
	}

	role := model.UserRole(def.Role)
	switch role {
	case model.UserRoleAdmin, model.UserRoleCreator, model.UserRoleNone:
	default:
		h.httpError(w, "Invalid tenant role", http.StatusBadRequest)
		return
	}

	targetID, err := uuid.Parse(def.UserID)
	if err != nil {
		h.httpError(w, "Invalid user id", http.StatusBadRequest)
		return
	}
	if commandType == model.CommandTeamCloudUserUpdate {
		pathID, err := uuid.Parse(r.PathValue("id"))
		if err != nil || pathID != targetID {
			h.httpError(w, "User id mismatch", http.StatusBadRequest)
			return
		}
	}

	if !user.IsAdmin() {
		// Bootstrap: before any admin exists, a caller may promote
		// themselves. Everything else is admin-only.
		bootstrap := commandType == model.CommandTeamCloudUserCreate &&
			role == model.UserRoleAdmin &&
			targetID == user.ID &&
			!h.latch.AdminsExist(r.Context(), user.Tenant)
		if !bootstrap {
			h.httpError(w, "Only admins may manage users", http.StatusForbidden)
			return
		}
	}

	target := model.User{
		ID:         targetID,
		Tenant:     user.Tenant,
		Role:       role,
		Properties: def.Properties,
	}

	cmd, err := model.NewCommand(commandType, user, target)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The admin set may be about to change.
	h.latch.Invalidate(user.Tenant)

	h.accept(w, r, cmd)
}

// CreateProjectUser handles POST /api/projects/{id}/users.
func (h *Handlers) CreateProjectUser(w http.ResponseWriter, r *http.Request) {
	h.setProjectUser(w, r, model.CommandProjectUserCreate, "")
}

// UpdateProjectUser handles PUT /api/projects/{id}/users/{userId}.
func (h *Handlers) UpdateProjectUser(w http.ResponseWriter, r *http.Request) {
	h.setProjectUser(w, r, model.CommandProjectUserUpdate, r.PathValue("userId"))
}

func (h *Handlers) setProjectUser(w http.ResponseWriter, r *http.Request, commandType model.CommandType, pathUserID string) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}

	project, ok := h.loadProject(w, r, user)
	if !ok {
		return
	}
	if !h.mayMutateProject(w, user, project.ID) {
		return
	}

	def, ok := h.decodeUserDefinition(w, r)
	if !ok {
		return
	}

	role := model.UserRole(def.Role)
	switch role {
	case model.ProjectRoleOwner, model.ProjectRoleMember:
	default:
		h.httpError(w, "Invalid project role", http.StatusBadRequest)
		return
	}

	targetID, err := uuid.Parse(def.UserID)
	if err != nil {
		h.httpError(w, "Invalid user id", http.StatusBadRequest)
		return
	}
	if pathUserID != "" {
		pathID, err := uuid.Parse(pathUserID)
		if err != nil || pathID != targetID {
			h.httpError(w, "User id mismatch", http.StatusBadRequest)
			return
		}
	}

	target := model.User{
		ID:         targetID,
		Tenant:     user.Tenant,
		Properties: def.Properties,
	}
	target.EnsureProjectMembership(project.ID, role)

	cmd, err := model.NewCommand(commandType, user, target)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd.WithProject(project.ID)

	h.accept(w, r, cmd)
}

func (h *Handlers) decodeUserDefinition(w http.ResponseWriter, r *http.Request) (api.UserDefinition, bool) {
	var def api.UserDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return def, false
	}
	if def.UserID == "" || def.Role == "" {
		h.httpError(w, "UserID and Role are required", http.StatusBadRequest)
		return def, false
	}
	return def, true
}
