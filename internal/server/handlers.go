package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/maauso/reelforge/internal/pipeline"
)

// sweepKey is the singleflight key shared by every trigger.
const sweepKey = "sweep"

// Sweeper runs one sweep over pending jobs.
type Sweeper interface {
	Sweep(ctx context.Context) (*pipeline.Summary, error)
}

// sweepOutcome is what a finished sweep hands to waiting requests.
type sweepOutcome struct {
	summary *pipeline.Summary
	err     error
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	sweeper   Sweeper
	validator *validator.Validate
	logger    *slog.Logger
	baseCtx   context.Context

	group   singleflight.Group
	running atomic.Bool

	mu       sync.RWMutex
	last     *pipeline.Summary
	lastErr  error
	inflight chan struct{} // closed when the running sweep returns
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithBaseContext sets the context sweeps run under. Cancelling it stops
// a running sweep between jobs. Sweeps never inherit request contexts.
func WithBaseContext(ctx context.Context) HandlerOption {
	return func(h *Handlers) {
		h.baseCtx = ctx
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sweeper Sweeper, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		sweeper:   sweeper,
		validator: validator.New(),
		logger:    logger,
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// TriggerSweep handles POST /sweeps requests. Concurrent triggers join the
// sweep already in flight instead of starting another one.
func (h *Handlers) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	joined := h.running.Load()
	ch := h.group.DoChan(sweepKey, func() (any, error) {
		return h.runSweep(time.Duration(req.TimeoutSeconds) * time.Second), nil
	})

	if !req.Wait {
		status := SweepStatusStarted
		if joined {
			status = SweepStatusRunning
		}
		writeJSON(w, http.StatusAccepted, SweepResponse{Status: status})
		return
	}

	select {
	case res := <-ch:
		out := res.Val.(sweepOutcome)
		resp := SweepResponse{Status: SweepStatusCompleted, Summary: out.summary}
		if out.err != nil {
			resp.Status = SweepStatusFailed
			resp.Error = out.err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	case <-r.Context().Done():
		// The sweep keeps running; the client stopped waiting.
		h.logger.Warn("client stopped waiting for sweep", slog.String("error", r.Context().Err().Error()))
	}
}

// LastSweep handles GET /sweeps/last requests.
func (h *Handlers) LastSweep(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	last, lastErr := h.last, h.lastErr
	h.mu.RUnlock()

	running := h.running.Load()
	if last == nil && !running {
		writeError(w, http.StatusNotFound, "no sweep has run yet", "NO_SWEEP")
		return
	}

	resp := LastSweepResponse{Running: running, Summary: last}
	if lastErr != nil {
		resp.Error = lastErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// runSweep executes one sweep and records its outcome. It runs inside the
// singleflight group, so at most one sweep is active.
func (h *Handlers) runSweep(timeout time.Duration) sweepOutcome {
	done := make(chan struct{})
	h.mu.Lock()
	h.inflight = done
	h.mu.Unlock()
	defer close(done)

	h.running.Store(true)
	defer h.running.Store(false)

	ctx := h.baseCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	summary, err := h.sweeper.Sweep(ctx)
	if err != nil {
		h.logger.Error("sweep failed", slog.String("error", err.Error()))
	}

	h.mu.Lock()
	if summary != nil {
		h.last = summary
	}
	h.lastErr = err
	h.mu.Unlock()

	return sweepOutcome{summary: summary, err: err}
}

// Wait blocks until the sweep in flight, if any, has returned. Call it once
// the HTTP server has stopped, so no trigger can start another sweep.
func (h *Handlers) Wait(ctx context.Context) error {
	h.mu.RLock()
	done := h.inflight
	h.mu.RUnlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
