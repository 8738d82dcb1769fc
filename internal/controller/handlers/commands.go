package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"projectplane/internal/model"
	"projectplane/pkg/api"
)

// GetCommandStatus handles GET /orchestrator/commands/{id}. The status code
// mirrors the command outcome: active commands answer 202, a completed
// project creation answers 201 with a Location header, other completions
// answer 200, and failures map their first recorded error to a client or
// server error with the full result in the body.
func (h *Handlers) GetCommandStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}

	commandID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid command id", http.StatusBadRequest)
		return
	}

	result, err := h.commands.QueryAsync(r.Context(), commandID)
	if err != nil {
		h.log.Error("command query failed", "command_id", commandID, "error", err)
		h.httpError(w, "Failed to query command", http.StatusInternalServerError)
		return
	}
	if result == nil {
		h.httpError(w, "Command not found", http.StatusNotFound)
		return
	}

	// Active commands point back at themselves; a finished project creation
	// points at the resource it produced.
	if location, ok := result.Links["location"]; ok && result.RuntimeStatus.IsFinal() {
		w.Header().Set("Location", location)
	} else if status, ok := result.Links["status"]; ok {
		w.Header().Set("Location", status)
	}

	h.respondJson(w, commandStatusCode(result), api.NewCommandStatusResponse(result))
}

func commandStatusCode(result *model.CommandResult) int {
	switch {
	case result.RuntimeStatus.IsActive(), result.RuntimeStatus == model.RuntimeStatusUnknown:
		return http.StatusAccepted
	case result.RuntimeStatus == model.RuntimeStatusCompleted:
		if result.CommandType == model.CommandProjectCreate {
			return http.StatusCreated
		}
		return http.StatusOK
	}

	if len(result.Errors) > 0 {
		switch result.Errors[0].Kind {
		case model.ErrorKindValidation:
			return http.StatusBadRequest
		case model.ErrorKindCapacity:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}
