// Package paidaction orchestrates the ledger and the dispatcher for any
// operation with an upfront cost. The flow is reserve → dispatch →
// commit-or-refund: the reservation decouples the ledger mutation from
// remote latency, so no ledger lock is ever held during a remote call,
// and no failure path can silently lose currency.
package paidaction

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/yuna-network/yuna/internal/dispatch"
	"github.com/yuna-network/yuna/internal/domain"
	"github.com/yuna-network/yuna/internal/infra/observability"
	"github.com/yuna-network/yuna/internal/ledger"
)

// Coordinator runs paid actions. One coordinator serves all users; at
// most one paid action runs per user at a time.
type Coordinator struct {
	ledger     *ledger.Ledger
	dispatcher *dispatch.Dispatcher

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates a coordinator.
func New(l *ledger.Ledger, d *dispatch.Dispatcher) *Coordinator {
	return &Coordinator{
		ledger:     l,
		dispatcher: d,
		active:     make(map[string]struct{}),
	}
}

// Perform executes a paid generation for a user.
//
// The reservation is guaranteed to reach a terminal state before Perform
// returns: commit on success, refund on every other exit — dispatch
// exhaustion, caller cancellation, even a panic below the reserve point.
func (c *Coordinator) Perform(ctx context.Context, userID string, cost int64, req domain.GenerationRequest) (*dispatch.Result, error) {
	if err := c.acquire(userID); err != nil {
		return nil, err
	}
	defer c.release(userID)

	res, err := c.ledger.Reserve(userID, cost)
	if err != nil {
		// No funds held, no remote call attempted.
		return nil, err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if refundErr := c.ledger.Refund(res); refundErr != nil {
			// Refund can only fail if the store is unavailable; the
			// reservation stays REFUNDED so a retry cannot double-credit.
			log.Printf("paidaction: refund %s for %s failed: %v", res.ID, userID, refundErr)
		}
	}()

	start := time.Now()
	result, err := c.dispatcher.Dispatch(ctx, req.Normalize())
	if err != nil {
		return nil, err
	}

	if err := c.ledger.Commit(res); err != nil {
		return nil, err
	}
	committed = true

	observability.GenerationSeconds.Observe(time.Since(start).Seconds())
	return result, nil
}

// ListModels proxies model listing through the dispatcher. Free action;
// no reservation involved.
func (c *Coordinator) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	return c.dispatcher.ListModels(ctx)
}

// ─── Per-User Busy Guard ────────────────────────────────────────────────────

// acquire marks a user busy, rejecting overlapping paid actions.
func (c *Coordinator) acquire(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[userID]; busy {
		return domain.ErrActionInProgress
	}
	c.active[userID] = struct{}{}
	return nil
}

func (c *Coordinator) release(userID string) {
	c.mu.Lock()
	delete(c.active, userID)
	c.mu.Unlock()
}
