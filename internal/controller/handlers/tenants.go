package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"projectplane/internal/model"
)

// tenantConfiguration is the tenant document plus the project types and
// deployment scopes that belong to it, applied together.
type tenantConfiguration struct {
	model.TeamCloudInstance
	ProjectTypes     []model.ProjectType     `json:"project_types,omitempty"`
	DeploymentScopes []model.DeploymentScope `json:"deployment_scopes,omitempty"`
}

// ConfigureTenant handles POST /internal/tenants. It upserts the tenant
// configuration document together with its seed users and project types in
// one transaction. The route sits behind internal auth, not the regular
// principal middleware.
func (h *Handlers) ConfigureTenant(w http.ResponseWriter, r *http.Request) {
	var config tenantConfiguration
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if config.Tenant == "" {
		h.httpError(w, "Tenant is required", http.StatusBadRequest)
		return
	}
	if config.ID == "" {
		config.ID = config.Tenant
	}

	tx, err := h.store.BeginTx(r.Context())
	if err != nil {
		h.httpError(w, "Failed to configure tenant", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.SetTeamCloudInstance(r.Context(), tx, &config.TeamCloudInstance); err != nil {
		h.log.Error("tenant upsert failed", "tenant", config.Tenant, "error", err)
		h.httpError(w, "Failed to configure tenant", http.StatusInternalServerError)
		return
	}

	for i := range config.ProjectTypes {
		projectType := config.ProjectTypes[i]
		projectType.Tenant = config.Tenant
		if err := h.store.SetProjectType(r.Context(), tx, &projectType); err != nil {
			h.log.Error("project type upsert failed", "tenant", config.Tenant, "type", projectType.ID, "error", err)
			h.httpError(w, "Failed to configure tenant", http.StatusInternalServerError)
			return
		}
	}

	for i := range config.DeploymentScopes {
		scope := config.DeploymentScopes[i]
		scope.Tenant = config.Tenant
		if scope.ID == uuid.Nil {
			scope.ID = uuid.New()
		}
		if err := h.store.SetDeploymentScope(r.Context(), tx, &scope); err != nil {
			h.log.Error("deployment scope upsert failed", "tenant", config.Tenant, "scope", scope.Name, "error", err)
			h.httpError(w, "Failed to configure tenant", http.StatusInternalServerError)
			return
		}
	}

	for i := range config.Users {
		user := config.Users[i]
		user.Tenant = config.Tenant
		if err := h.store.SetUser(r.Context(), tx, &user); err != nil {
			h.log.Error("tenant user upsert failed", "tenant", config.Tenant, "user_id", user.ID, "error", err)
			h.httpError(w, "Failed to configure tenant", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to configure tenant", http.StatusInternalServerError)
		return
	}

	// Seed users may include admins.
	h.latch.Invalidate(config.Tenant)

	h.log.Info("tenant configured", "tenant", config.Tenant,
		"providers", len(config.Providers), "project_types", len(config.ProjectTypes),
		"deployment_scopes", len(config.DeploymentScopes), "users", len(config.Users))
	h.respondJson(w, http.StatusCreated, config)
}
