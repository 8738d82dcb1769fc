// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"time"

	"projectplane/internal/model"
)

// ProjectDefinition is the request body for creating a project.
type ProjectDefinition struct {
	Name        string            `json:"name"`
	ProjectType string            `json:"project_type,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// ProjectUpdate is the request body for updating a project.
type ProjectUpdate struct {
	Name       string            `json:"name,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// UserDefinition is the request body for creating or updating a user, at
// tenant level or inside a project.
type UserDefinition struct {
	UserID     string            `json:"user_id"`
	Role       string            `json:"role"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ProjectResponse is the subset of the project document the CLI renders.
type ProjectResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type struct {
		ID     string `json:"id"`
		Region string `json:"region"`
	} `json:"type"`
	ResourceGroup *struct {
		Name           string `json:"name"`
		SubscriptionID string `json:"subscription_id"`
		Region         string `json:"region"`
	} `json:"resource_group,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// CommandStatusResponse is the queryable state of an accepted command.
type CommandStatusResponse struct {
	CommandID     string            `json:"command_id"`
	CommandType   string            `json:"command_type,omitempty"`
	RuntimeStatus string            `json:"runtime_status"`
	CustomStatus  string            `json:"custom_status,omitempty"`
	Result        interface{}       `json:"result,omitempty"`
	Errors        []CommandError    `json:"errors,omitempty"`
	Links         map[string]string `json:"_links,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// CommandError is one failure recorded on a command.
type CommandError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewCommandStatusResponse converts an internal command result.
func NewCommandStatusResponse(result *model.CommandResult) CommandStatusResponse {
	resp := CommandStatusResponse{
		CommandID:     result.CommandID.String(),
		CommandType:   string(result.CommandType),
		RuntimeStatus: string(result.RuntimeStatus),
		CustomStatus:  result.CustomStatus,
		Links:         result.Links,
		CreatedAt:     result.CreatedAt,
		UpdatedAt:     result.UpdatedAt,
	}
	if len(result.Result) > 0 {
		resp.Result = result.Result
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, CommandError{Kind: string(e.Kind), Message: e.Message})
	}
	return resp
}
