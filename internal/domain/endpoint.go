package domain

import "time"

// ─── Endpoint Health ────────────────────────────────────────────────────────
// Remote generation servers form a closed set configured at startup.
// Health transitions: UP → SUSPECT on first failure, SUSPECT → DOWN after
// repeated failures, DOWN → SUSPECT once the cooldown expires. A single
// success is required to fully recover to UP.

// EndpointHealth classifies how usable an endpoint currently is.
type EndpointHealth int

const (
	HealthUp EndpointHealth = iota
	HealthSuspect
	HealthDown
)

// String returns a human-readable health state.
func (h EndpointHealth) String() string {
	switch h {
	case HealthUp:
		return "up"
	case HealthSuspect:
		return "suspect"
	case HealthDown:
		return "down"
	default:
		return "unknown"
	}
}

// Endpoint is one configured remote generation server.
type Endpoint struct {
	Address             string         `json:"address"`
	Health              EndpointHealth `json:"health"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	CooldownUntil       time.Time      `json:"cooldown_until,omitempty"`
	LastFailure         time.Time      `json:"last_failure,omitempty"`
}

// ModelInfo describes a model installed on a remote endpoint.
type ModelInfo struct {
	Title string `json:"title"`
	Name  string `json:"model_name"`
}
