package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a dependency.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Sessions int               `json:"sessions"`
}

// NewHealthHandler reports healthy when every dependency answers. sessions reports the
// number of connected stations.
func NewHealthHandler(deps map[string]Pinger, sessions func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "healthy", Services: make(map[string]string, len(deps))}
		for name, dep := range deps {
			if err := dep.PingContext(ctx); err != nil {
				resp.Services[name] = "unhealthy"
				resp.Status = "unhealthy"
				continue
			}
			resp.Services[name] = "healthy"
		}
		if sessions != nil {
			resp.Sessions = sessions()
		}

		status := http.StatusOK
		if resp.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
