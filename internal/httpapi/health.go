package httpapi

import (
	"net/http"

	"github.com/vitality-ai/warpdrive/internal/appstate"
)

// healthHandlers serves liveness/readiness probes, grounded in the
// teacher's handlers.HealthHandler.
type healthHandlers struct {
	app *appstate.AppState
}

// Liveness always returns 200 once the process is serving requests.
func (h *healthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// Readiness checks the chunk store and metadata index are reachable.
func (h *healthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.app.HealthCheck(r.Context()); err != nil {
		writeText(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeText(w, http.StatusOK, "ok")
}
