// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"projectplane/internal/controller/middleware"
	"projectplane/internal/logger"
	"projectplane/internal/model"
	"projectplane/internal/store"
	"projectplane/pkg/api"
)

// StoreFactory combines the interfaces needed for the controller to function.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.ProjectStore
	store.ProjectTypeStore
	store.DeploymentScopeStore
	store.UserStore
	store.TeamCloudStore
}

// CommandClient accepts commands and resolves their results.
type CommandClient interface {
	InvokeAsync(ctx context.Context, cmd *model.Command) (*model.CommandResult, error)
	QueryAsync(ctx context.Context, commandID uuid.UUID) (*model.CommandResult, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store    StoreFactory
	commands CommandClient
	latch    *middleware.AdminLatch
	log      *slog.Logger
}

// New creates a new Handlers instance.
func New(s StoreFactory, commands CommandClient, latch *middleware.AdminLatch, log *slog.Logger) *Handlers {
	return &Handlers{store: s, commands: commands, latch: latch, log: log}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// principal pulls the acting user set by the auth middleware.
func (h *Handlers) principal(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}

// accept invokes the command and answers 202 with the pending result.
func (h *Handlers) accept(w http.ResponseWriter, r *http.Request, cmd *model.Command) {
	result, err := h.commands.InvokeAsync(r.Context(), cmd)
	if err != nil {
		var ce model.CommandError
		if isKind(err, &ce) && ce.Kind == model.ErrorKindValidation {
			h.httpError(w, ce.Message, http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context(), h.log).Error("command invocation failed", "command_type", cmd.Type, "error", err)
		h.httpError(w, "Failed to accept command", http.StatusInternalServerError)
		return
	}

	if location, ok := result.Links["status"]; ok {
		w.Header().Set("Location", location)
	}
	h.respondJson(w, http.StatusAccepted, api.NewCommandStatusResponse(result))
}

func isKind(err error, target *model.CommandError) bool {
	ce, ok := err.(model.CommandError)
	if ok {
		*target = ce
	}
	return ok
}
