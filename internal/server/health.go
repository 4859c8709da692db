package server

import (
	"net/http"
	"time"
)

type componentHealth struct {
	Status  string `json:"status"` // "up" or "down"
	Message string `json:"message,omitempty"`
}

type healthResp struct {
	Status     string                     `json:"status"` // "ok" or "degraded"
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]componentHealth `json:"components"`
}

// healthHandler reports whether the metadata store and object store are
// usable. Degraded still answers 200 so load balancers keep routing;
// both components down answers 503.
func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentHealth{}
		down := 0

		if _, err := s.store.List(); err != nil {
			components["metadata_store"] = componentHealth{Status: "down", Message: err.Error()}
			down++
		} else {
			components["metadata_store"] = componentHealth{Status: "up"}
		}

		if _, err := s.objects.List(r.Context()); err != nil {
			components["object_store"] = componentHealth{Status: "down", Message: err.Error()}
			down++
		} else {
			components["object_store"] = componentHealth{Status: "up"}
		}

		status := "ok"
		code := http.StatusOK
		switch down {
		case 1:
			status = "degraded"
		case 2:
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, healthResp{
			Status:     status,
			Version:    s.cfg.Build.Version,
			Timestamp:  time.Now().UTC(),
			Components: components,
		})
	}
}
