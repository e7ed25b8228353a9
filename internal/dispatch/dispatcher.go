package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yuna-network/yuna/internal/domain"
	"github.com/yuna-network/yuna/internal/infra/observability"
)

// ─── Errors ─────────────────────────────────────────────────────────────────

// AttemptError records why one endpoint failed a request.
type AttemptError struct {
	Address string
	Err     error
}

// ExhaustedError is returned when every candidate endpoint failed. It
// carries the per-endpoint reasons for diagnostics.
type ExhaustedError struct {
	Attempts []AttemptError
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d endpoints exhausted", len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Address, a.Err)
	}
	return b.String()
}

// ─── Dispatcher ─────────────────────────────────────────────────────────────

// Result is a successful generation outcome.
type Result struct {
	Images   [][]byte
	Endpoint string
}

// Dispatcher fans a logical generation request across registry candidates.
// Failover is invisible to the caller: exactly one terminal outcome per
// request, success or exhaustion.
type Dispatcher struct {
	registry *Registry
	backend  domain.ImageBackend

	// attemptTimeout bounds each individual endpoint attempt; an
	// unresponsive endpoint must never stall the whole request.
	attemptTimeout time.Duration
}

// NewDispatcher creates a dispatcher. attemptTimeout must be positive.
func NewDispatcher(registry *Registry, backend domain.ImageBackend, attemptTimeout time.Duration) *Dispatcher {
	if attemptTimeout <= 0 {
		attemptTimeout = 2 * time.Minute
	}
	return &Dispatcher{
		registry:       registry,
		backend:        backend,
		attemptTimeout: attemptTimeout,
	}
}

// Registry exposes the underlying endpoint registry (for status surfaces).
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch tries candidates in registry order until one succeeds. Every
// failure is reported to the registry and the next candidate is tried;
// the first success wins and no further candidates are consulted.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	candidates := d.registry.ListCandidates()

	var attempts []AttemptError
	for _, ep := range candidates {
		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		images, err := d.backend.Generate(attemptCtx, ep.Address, req)
		cancel()

		if err == nil {
			d.registry.ReportSuccess(ep.Address)
			observability.DispatchAttempts.WithLabelValues("success").Inc()
			return &Result{Images: images, Endpoint: ep.Address}, nil
		}

		d.registry.ReportFailure(ep.Address)
		observability.DispatchAttempts.WithLabelValues("failure").Inc()
		attempts = append(attempts, AttemptError{Address: ep.Address, Err: err})

		// The caller is gone; trying further endpoints is pointless.
		if ctx.Err() != nil {
			break
		}
	}

	observability.DispatchExhausted.Inc()
	return nil, &ExhaustedError{Attempts: attempts}
}

// ListModels returns the models installed on the first responsive
// endpoint. Shares the registry's candidate ordering and health
// reporting with Dispatch.
func (d *Dispatcher) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	candidates := d.registry.ListCandidates()

	var attempts []AttemptError
	for _, ep := range candidates {
		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		models, err := d.backend.ListModels(attemptCtx, ep.Address)
		cancel()

		if err == nil {
			d.registry.ReportSuccess(ep.Address)
			return models, nil
		}
		d.registry.ReportFailure(ep.Address)
		attempts = append(attempts, AttemptError{Address: ep.Address, Err: err})

		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ExhaustedError{Attempts: attempts}
}
