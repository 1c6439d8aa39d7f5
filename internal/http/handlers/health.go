package handlers

import (
	"net/http"

	"github.com/wolfman30/frontdesk-calendar/internal/frontdesk"
)

// HealthResponse reports liveness and whether the grid is current.
type HealthResponse struct {
	Status     string `json:"status"`
	Stale      bool   `json:"stale"`
	Generation uint64 `json:"generation"`
	WeekStart  string `json:"week_start"`
}

// Health handles GET /health. A stale grid is still healthy: the console
// keeps serving the last good snapshot while the schedule API is down.
func Health(console *frontdesk.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if console != nil {
			st := console.Status()
			resp.Stale = st.Stale
			resp.Generation = st.Generation
			resp.WeekStart = st.WeekStart.String()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
