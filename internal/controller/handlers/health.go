package handlers

import (
	"net/http"
)

// Health handles GET /healthz. It reports readiness based on database
// connectivity.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Error("health check failed", "error", err)
		h.respondJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
