// Package dispatch routes generation requests across the configured remote
// endpoints. The registry tracks per-endpoint health as an explicit state
// machine (up → suspect → down → cooldown → suspect) so failover behavior
// is deterministic rather than retry-until-give-up.
package dispatch

import (
	"sort"
	"sync"
	"time"

	"github.com/yuna-network/yuna/internal/domain"
	"github.com/yuna-network/yuna/internal/infra/observability"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// RegistryConfig controls the health state machine.
type RegistryConfig struct {
	// DownThreshold is how many consecutive failures demote SUSPECT to
	// DOWN (default: 3).
	DownThreshold int

	// BackoffBase is the cooldown after the first demotion to DOWN; it
	// doubles per additional consecutive failure (default: 30s).
	BackoffBase time.Duration

	// BackoffCap bounds the exponential cooldown (default: 10m).
	BackoffCap time.Duration

	// Now is the clock; defaults to time.Now. Override in tests.
	Now func() time.Time
}

// DefaultRegistryConfig returns conservative failover defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		DownThreshold: 3,
		BackoffBase:   30 * time.Second,
		BackoffCap:    10 * time.Minute,
	}
}

// ─── Registry ───────────────────────────────────────────────────────────────

// Registry tracks the fixed set of endpoints configured at startup.
// No endpoint is ever removed; health transitions for the life of the
// process based on reported outcomes.
type Registry struct {
	mu        sync.Mutex
	cfg       RegistryConfig
	endpoints []*domain.Endpoint
}

// NewRegistry creates a registry over the configured addresses.
// All endpoints start UP.
func NewRegistry(addresses []string, cfg RegistryConfig) *Registry {
	if cfg.DownThreshold <= 0 {
		cfg.DownThreshold = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := &Registry{cfg: cfg}
	for _, addr := range addresses {
		r.endpoints = append(r.endpoints, &domain.Endpoint{Address: addr})
		observability.EndpointHealth.WithLabelValues(addr).Set(0)
	}
	return r
}

// ListCandidates returns endpoint snapshots in dispatch order: UP first,
// then SUSPECT, then DOWN endpoints whose cooldown has expired (these
// re-enter as SUSPECT), each class ordered least-recently-failed first.
// When every endpoint is DOWN and still cooling, all of them are returned
// least-recently-failed first — a request is never dropped without at
// least one attempt.
func (r *Registry) ListCandidates() []domain.Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.Now()

	// Cooldown expiry re-admits DOWN endpoints as SUSPECT. A single
	// success is still required before they count as UP again.
	readmitted := make(map[string]bool)
	for _, ep := range r.endpoints {
		if ep.Health == domain.HealthDown && !now.Before(ep.CooldownUntil) {
			ep.Health = domain.HealthSuspect
			readmitted[ep.Address] = true
			r.reportHealth(ep)
		}
	}

	// Re-admitted endpoints sort after endpoints that were never demoted
	// to DOWN: they already burned through the failure threshold once.
	rank := func(ep *domain.Endpoint) int {
		switch {
		case ep.Health == domain.HealthDown:
			return 3
		case readmitted[ep.Address]:
			return 2
		default:
			return int(ep.Health)
		}
	}

	ordered := make([]*domain.Endpoint, len(r.endpoints))
	copy(ordered, r.endpoints)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ri, rj := rank(ordered[i]), rank(ordered[j]); ri != rj {
			return ri < rj
		}
		return ordered[i].LastFailure.Before(ordered[j].LastFailure)
	})

	out := make([]domain.Endpoint, 0, len(ordered))
	for _, ep := range ordered {
		if ep.Health != domain.HealthDown {
			out = append(out, *ep)
		}
	}
	if len(out) == 0 {
		// Degraded mode: everything is cooling, try them anyway.
		for _, ep := range ordered {
			out = append(out, *ep)
		}
	}
	return out
}

// ReportSuccess marks an endpoint fully healthy.
func (r *Registry) ReportSuccess(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep := r.find(address)
	if ep == nil {
		return
	}
	ep.Health = domain.HealthUp
	ep.ConsecutiveFailures = 0
	ep.CooldownUntil = time.Time{}
	r.reportHealth(ep)
}

// ReportFailure records a failed attempt: UP demotes to SUSPECT
// immediately, SUSPECT demotes to DOWN once the threshold is reached, and
// a DOWN endpoint gets an exponentially growing (capped) cooldown.
func (r *Registry) ReportFailure(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep := r.find(address)
	if ep == nil {
		return
	}

	now := r.cfg.Now()
	ep.ConsecutiveFailures++
	ep.LastFailure = now

	switch {
	case ep.ConsecutiveFailures >= r.cfg.DownThreshold:
		ep.Health = domain.HealthDown
		ep.CooldownUntil = now.Add(r.backoff(ep.ConsecutiveFailures))
	default:
		ep.Health = domain.HealthSuspect
	}
	r.reportHealth(ep)
}

// Snapshot returns a copy of every endpoint's current state.
func (r *Registry) Snapshot() []domain.Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, *ep)
	}
	return out
}

// backoff computes the cooldown for n consecutive failures:
// base · 2^(n−threshold), capped.
func (r *Registry) backoff(n int) time.Duration {
	d := r.cfg.BackoffBase
	for i := r.cfg.DownThreshold; i < n; i++ {
		d *= 2
		if d >= r.cfg.BackoffCap {
			return r.cfg.BackoffCap
		}
	}
	if d > r.cfg.BackoffCap {
		d = r.cfg.BackoffCap
	}
	return d
}

func (r *Registry) find(address string) *domain.Endpoint {
	for _, ep := range r.endpoints {
		if ep.Address == address {
			return ep
		}
	}
	return nil
}

func (r *Registry) reportHealth(ep *domain.Endpoint) {
	observability.EndpointHealth.WithLabelValues(ep.Address).Set(float64(ep.Health))
}
