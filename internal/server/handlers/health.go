package handlers

import "context"

// HealthRequest is the request type for health check (empty).
type HealthRequest struct{}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Health reports liveness. It deliberately does not touch the object
// store; a degraded store still serves reads from the seed document.
func Health(ctx context.Context, req HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok", Service: "rosterd"}, nil
}
