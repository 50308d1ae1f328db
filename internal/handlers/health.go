package handlers

import (
	"net/http"

	"github.com/storyforge/image-api/internal/platform/httpx"
)

const (
	serviceName    = "story-image-api"
	serviceVersion = "1.0.0"
)

// HealthHandlers reports liveness for load balancers and the backend.
type HealthHandlers struct{}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers() *HealthHandlers {
	return &HealthHandlers{}
}

// Health responds with the service identity and a running status.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"service": serviceName,
		"version": serviceVersion,
		"status":  "running",
	})
}
