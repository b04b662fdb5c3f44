// Package server provides the ops HTTP surface of reelforge: a health check,
// a trigger for sweeps and the summary of the last one.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "github.com/maauso/reelforge/internal/pipeline"

// SweepRequest is the optional HTTP request body for triggering a sweep.
type SweepRequest struct {
	// Wait blocks the request until the sweep finishes.
	Wait bool `json:"wait"`
	// TimeoutSeconds bounds the sweep. Zero means no bound.
	TimeoutSeconds int `json:"timeout_seconds" validate:"omitempty,min=1,max=86400"`
}

// Sweep statuses reported by the API.
const (
	SweepStatusStarted   = "started"
	SweepStatusRunning   = "running"
	SweepStatusCompleted = "completed"
	SweepStatusFailed    = "failed"
)

// SweepResponse is the HTTP response after triggering a sweep.
type SweepResponse struct {
	// Status is one of started, running, completed or failed.
	Status string `json:"status"`
	// Summary is set once the sweep has finished.
	Summary *pipeline.Summary `json:"summary,omitempty"`
	// Error contains the sweep error, if any.
	Error string `json:"error,omitempty"`
}

// LastSweepResponse is the HTTP response for the last sweep.
type LastSweepResponse struct {
	// Running is true while a sweep is in progress.
	Running bool `json:"running"`
	// Summary is the summary of the last finished sweep.
	Summary *pipeline.Summary `json:"summary,omitempty"`
	// Error contains the error of the last finished sweep, if any.
	Error string `json:"error,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
