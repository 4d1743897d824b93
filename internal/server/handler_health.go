package server

import "net/http"

const (
	healthOK      = "ok"
	healthLoading = "loading"
)

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if h.models == nil || !h.models.Loaded() {
		writeJson(w, http.StatusServiceUnavailable, HealthResponse{Status: healthLoading})

		return
	}

	writeJson(w, http.StatusOK, HealthResponse{
		Status:      healthOK,
		Device:      h.models.Device(),
		ModelLoaded: true,
	})
}
