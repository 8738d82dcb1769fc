package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"projectplane/internal/model"
	"projectplane/pkg/api"
)

// ListProjects handles GET /api/projects.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}

	projects, err := h.store.ListProjects(r.Context(), user.Tenant)
	if err != nil {
		h.httpError(w, "Failed to list projects", http.StatusInternalServerError)
		return
	}

	// Non-admins only see projects they are members of.
	if !user.IsAdmin() {
		visible := projects[:0]
		for _, p := range projects {
			if user.RoleFor(p.ID) != model.UserRoleNone {
				visible = append(visible, p)
			}
		}
		projects = visible
	}

	h.respondJson(w, http.StatusOK, projects)
}

// GetProject handles GET /api/projects/{id}.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}

	project, ok := h.loadProject(w, r, user)
	if !ok {
		return
	}

	if !user.IsAdmin() && user.RoleFor(project.ID) == model.UserRoleNone {
		h.httpError(w, "Project not found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, project)
}

// CreateProject handles POST /api/projects.
// The project is provisioned asynchronously; the response carries the
// command status link to poll.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	if !user.IsAdmin() && user.Role != model.UserRoleCreator {
		h.httpError(w, "Insufficient role to create projects", http.StatusForbidden)
		return
	}

	var def api.ProjectDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if def.Name == "" {
		h.httpError(w, "Name is required", http.StatusBadRequest)
		return
	}

	projectType, ok := h.resolveProjectType(w, r, user.Tenant, def.ProjectType)
	if !ok {
		return
	}

	project := model.Project{
		ID:         uuid.New(),
		Tenant:     user.Tenant,
		Name:       def.Name,
		Type:       *projectType,
		Tags:       def.Tags,
		Properties: def.Properties,
	}

	cmd, err := model.NewCommand(model.CommandProjectCreate, user, project)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd.WithProject(project.ID)

	h.accept(w, r, cmd)
}

// UpdateProject handles PUT /api/projects/{id}.
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
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

	var update api.ProjectUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if update.Name != "" {
		project.Name = update.Name
	}
	project.Tags = update.Tags
	project.Properties = update.Properties

	cmd, err := model.NewCommand(model.CommandProjectUpdate, user, project)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd.WithProject(project.ID)

	h.accept(w, r, cmd)
}

// DeleteProject handles DELETE /api/projects/{id}.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
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

	cmd, err := model.NewCommand(model.CommandProjectDelete, user, project)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd.WithProject(project.ID)

	h.accept(w, r, cmd)
}

func (h *Handlers) loadProject(w http.ResponseWriter, r *http.Request, user *model.User) (*model.Project, bool) {
	projectID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid project id", http.StatusBadRequest)
		return nil, false
	}

	project, err := h.store.GetProject(r.Context(), projectID)
	if errors.Is(err, sql.ErrNoRows) {
		h.httpError(w, "Project not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.httpError(w, "Failed to load project", http.StatusInternalServerError)
		return nil, false
	}
	if project.Tenant != user.Tenant {
		h.httpError(w, "Project not found", http.StatusNotFound)
		return nil, false
	}
	return project, true
}

func (h *Handlers) mayMutateProject(w http.ResponseWriter, user *model.User, projectID uuid.UUID) bool {
	if user.IsAdmin() || user.RoleFor(projectID) == model.ProjectRoleOwner {
		return true
	}
	h.httpError(w, "Insufficient role for this project", http.StatusForbidden)
	return false
}

func (h *Handlers) resolveProjectType(w http.ResponseWriter, r *http.Request, tenant, typeID string) (*model.ProjectType, bool) {
	var (
		projectType *model.ProjectType
		err         error
	)
	if typeID != "" {
		projectType, err = h.store.GetProjectType(r.Context(), typeID)
	} else {
		projectType, err = h.store.GetDefaultProjectType(r.Context(), tenant)
	}
	if errors.Is(err, sql.ErrNoRows) {
		h.httpError(w, "Project type not found", http.StatusBadRequest)
		return nil, false
	}
	if err != nil {
		h.httpError(w, "Failed to resolve project type", http.StatusInternalServerError)
		return nil, false
	}
	if projectType.Tenant != "" && projectType.Tenant != tenant {
		h.httpError(w, "Project type not found", http.StatusBadRequest)
		return nil, false
	}
	return projectType, true
}
