// Package ledger enforces the economy invariants over durable accounts:
// balances never go negative, exp only grows outside explicit admin
// adjustments, and every debit tied to a remote action is held in a
// reservation until the action commits or refunds. Accounts are the
// ledger's exclusive property — nothing else writes them.
package ledger

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yuna-network/yuna/internal/domain"
	"github.com/yuna-network/yuna/internal/infra/observability"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config carries the reward tables and gating periods. Values come from
// the daemon configuration; the ledger treats them as immutable.
type Config struct {
	DailyMoney    int64
	DailyExp      int64
	DailyCooldown time.Duration

	MessageExpMin      int64
	MessageExpMax      int64
	MessageExpInterval time.Duration

	GameRewards map[string]domain.GameReward

	// ConflictRetries bounds internal retries on store version conflicts
	// before surfacing ErrUnavailable.
	ConflictRetries int

	// Now is the clock; defaults to time.Now. Override in tests.
	Now func() time.Time

	// RandInt returns a uniform value in [0, n); defaults to math/rand.
	RandInt func(n int64) int64
}

// DefaultConfig returns the reward defaults the bot shipped with.
func DefaultConfig() Config {
	return Config{
		DailyMoney:         500,
		DailyExp:           1000,
		DailyCooldown:      24 * time.Hour,
		MessageExpMin:      5,
		MessageExpMax:      15,
		MessageExpInterval: time.Minute,
		GameRewards: map[string]domain.GameReward{
			"easy":   {Exp: 100, Money: 50},
			"medium": {Exp: 250, Money: 125},
			"hard":   {Exp: 500, Money: 250},
		},
		ConflictRetries: 5,
	}
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// Ledger serializes all mutations per account and persists through an
// optimistically-versioned store. Operations on different accounts never
// block each other.
type Ledger struct {
	store domain.AccountStore
	cfg   Config

	locks keyedMutex

	resMu        sync.Mutex
	reservations map[string]*domain.Reservation
	refunding    map[string]bool
}

// New creates a ledger over the given store.
func New(store domain.AccountStore, cfg Config) *Ledger {
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RandInt == nil {
		cfg.RandInt = rand.Int63n
	}
	return &Ledger{
		store:        store,
		cfg:          cfg,
		reservations: make(map[string]*domain.Reservation),
		refunding:    make(map[string]bool),
	}
}

// ─── Persistence Helpers ────────────────────────────────────────────────────

// loadAccount reads and decodes an account, defaulting a fresh one for an
// unknown id (first-touch semantics). The caller must hold the account lock
// if it intends to write the result back.
func (l *Ledger) loadAccount(userID string) (domain.Account, error) {
	data, version, ok, err := l.store.Get(userID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account %s: %w", userID, err)
	}
	if !ok {
		return domain.NewAccount(userID), nil
	}

	var acct domain.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return domain.Account{}, fmt.Errorf("decode account %s: %w", userID, err)
	}
	acct.ID = userID
	acct.Version = version
	return acct, nil
}

// saveAccount encodes and writes an account at its loaded version.
func (l *Ledger) saveAccount(acct domain.Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", acct.ID, err)
	}
	return l.store.Put(acct.ID, data, acct.Version)
}

// mutate applies fn to an account inside its critical section and persists
// the result. Version conflicts (an external writer) are retried up to the
// configured bound, then surfaced as ErrUnavailable. A non-nil error from
// fn aborts with no mutation.
func (l *Ledger) mutate(userID string, fn func(*domain.Account) error) (domain.Account, error) {
	l.locks.Lock(userID)
	defer l.locks.Unlock(userID)
	return l.mutateLocked(userID, fn)
}

// mutateLocked is mutate without acquiring the lock; used by Transfer,
// which locks both accounts up front.
func (l *Ledger) mutateLocked(userID string, fn func(*domain.Account) error) (domain.Account, error) {
	var lastErr error
	for attempt := 0; attempt < l.cfg.ConflictRetries; attempt++ {
		acct, err := l.loadAccount(userID)
		if err != nil {
			return domain.Account{}, err
		}
		if err := fn(&acct); err != nil {
			return domain.Account{}, err
		}
		err = l.saveAccount(acct)
		if err == nil {
			acct.Version++
			return acct, nil
		}
		if err != domain.ErrVersionConflict && !isConflict(err) {
			return domain.Account{}, err
		}
		lastErr = err
		observability.StoreConflicts.Inc()
	}
	return domain.Account{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, lastErr)
}

func isConflict(err error) bool {
	return err == domain.ErrVersionConflict
}

// ─── Read Operations ────────────────────────────────────────────────────────

// GetAccount returns a read-only snapshot, creating nothing. An unknown id
// yields the default account.
func (l *Ledger) GetAccount(userID string) (domain.Account, error) {
	return l.loadAccount(userID)
}

// Leaderboard returns accounts ordered by exp descending, ties broken by
// ascending user id. The ordering is deterministic so pagination with
// limit/offset is reproducible.
func (l *Ledger) Leaderboard(limit, offset int) ([]domain.Account, error) {
	raw, err := l.store.List()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	accounts := make([]domain.Account, 0, len(raw))
	for key, data := range raw {
		var acct domain.Account
		if err := json.Unmarshal(data, &acct); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", key, err)
		}
		acct.ID = key
		accounts = append(accounts, acct)
	}

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Exp != accounts[j].Exp {
			return accounts[i].Exp > accounts[j].Exp
		}
		return accounts[i].ID < accounts[j].ID
	})

	if offset >= len(accounts) {
		return nil, nil
	}
	accounts = accounts[offset:]
	if limit > 0 && limit < len(accounts) {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

// ─── Reservations ───────────────────────────────────────────────────────────

// Reserve atomically holds amount from the user's balance and returns a
// RESERVED reservation. Fails with ErrInsufficientFunds (no mutation) when
// the balance cannot cover the amount.
func (l *Ledger) Reserve(userID string, amount int64) (*domain.Reservation, error) {
	if amount <= 0 {
		return nil, domain.ErrNonPositiveAmount
	}

	_, err := l.mutate(userID, func(acct *domain.Account) error {
		if acct.Balance < amount {
			return domain.ErrInsufficientFunds
		}
		acct.Balance -= amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &domain.Reservation{
		ID:     uuid.NewString(),
		UserID: userID,
		Amount: amount,
		State:  domain.ReservationReserved,
	}

	l.resMu.Lock()
	l.reservations[res.ID] = res
	l.resMu.Unlock()

	observability.Reservations.WithLabelValues("reserved").Inc()
	return res, nil
}

// Commit finalizes a reservation: the held funds are spent for good.
// Idempotent for an already committed reservation; a refunded one fails
// with ErrInvalidState.
func (l *Ledger) Commit(res *domain.Reservation) error {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	tracked, ok := l.reservations[res.ID]
	if !ok {
		return fmt.Errorf("unknown reservation %s: %w", res.ID, domain.ErrInvalidState)
	}
	switch tracked.State {
	case domain.ReservationCommitted:
		return nil // idempotent
	case domain.ReservationRefunded:
		return domain.ErrInvalidState
	}
	if l.refunding[res.ID] {
		// A refund is crediting the account right now; committing too
		// would pay the user twice.
		return domain.ErrInvalidState
	}
	tracked.State = domain.ReservationCommitted
	res.State = domain.ReservationCommitted
	observability.Reservations.WithLabelValues("committed").Inc()
	return nil
}

// Refund reverses a reservation, re-crediting the held amount. Idempotent
// for an already refunded reservation; a committed one fails with
// ErrInvalidState. The reservation only becomes REFUNDED once the credit
// has persisted: if the store write fails, it stays RESERVED and a later
// Refund can settle it, so held funds are never lost to a store error.
func (l *Ledger) Refund(res *domain.Reservation) error {
	l.resMu.Lock()
	tracked, ok := l.reservations[res.ID]
	if !ok {
		l.resMu.Unlock()
		return fmt.Errorf("unknown reservation %s: %w", res.ID, domain.ErrInvalidState)
	}
	switch tracked.State {
	case domain.ReservationRefunded:
		l.resMu.Unlock()
		return nil // idempotent
	case domain.ReservationCommitted:
		l.resMu.Unlock()
		return domain.ErrInvalidState
	}
	if l.refunding[res.ID] {
		// Another goroutine is mid-credit on this reservation; crediting
		// again would double the refund.
		l.resMu.Unlock()
		return fmt.Errorf("refund in progress for reservation %s: %w", res.ID, domain.ErrUnavailable)
	}
	l.refunding[res.ID] = true
	l.resMu.Unlock()

	_, err := l.mutate(tracked.UserID, func(acct *domain.Account) error {
		acct.Balance += tracked.Amount
		return nil
	})

	l.resMu.Lock()
	delete(l.refunding, res.ID)
	if err != nil {
		l.resMu.Unlock()
		return fmt.Errorf("refund reservation %s: %w", tracked.ID, err)
	}
	tracked.State = domain.ReservationRefunded
	res.State = domain.ReservationRefunded
	l.resMu.Unlock()

	observability.Reservations.WithLabelValues("refunded").Inc()
	return nil
}

// ─── Transfers ──────────────────────────────────────────────────────────────

// Transfer moves amount from one user to another. Both sides succeed or
// neither does; no partial state is observable.
func (l *Ledger) Transfer(fromID, toID string, amount int64) error {
	if fromID == toID {
		return domain.ErrSelfTransfer
	}
	if amount <= 0 {
		return domain.ErrNonPositiveAmount
	}

	// Lock both accounts in a stable order to avoid deadlock with a
	// concurrent transfer in the opposite direction.
	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}
	l.locks.Lock(first)
	defer l.locks.Unlock(first)
	l.locks.Lock(second)
	defer l.locks.Unlock(second)

	debited, err := l.mutateLocked(fromID, func(acct *domain.Account) error {
		if acct.Balance < amount {
			return domain.ErrInsufficientFunds
		}
		acct.Balance -= amount
		return nil
	})
	if err != nil {
		return err
	}

	_, err = l.mutateLocked(toID, func(acct *domain.Account) error {
		acct.Balance += amount
		return nil
	})
	if err != nil {
		// Compensate the debit; both locks are still held so nothing can
		// observe the intermediate state.
		debited.Balance += amount
		if saveErr := l.saveAccount(debited); saveErr != nil {
			return fmt.Errorf("credit failed (%v) and compensation failed: %w", err, saveErr)
		}
		return fmt.Errorf("credit %s: %w", toID, err)
	}

	observability.LedgerOps.WithLabelValues("transfer").Inc()
	return nil
}

// ─── Daily Rewards ──────────────────────────────────────────────────────────

// ClaimDaily grants the daily reward if the cooldown has elapsed. The
// check-and-set is atomic per account, so two claims racing on the
// boundary cannot both win. choice selects money or exp; anything else
// defaults to money.
func (l *Ledger) ClaimDaily(userID string, choice domain.RewardChoice, now time.Time) (*domain.RewardGrant, error) {
	var grant domain.RewardGrant

	_, err := l.mutate(userID, func(acct *domain.Account) error {
		if !acct.LastDailyClaim.IsZero() {
			elapsed := now.Sub(acct.LastDailyClaim)
			if elapsed < l.cfg.DailyCooldown {
				return &domain.CooldownError{Remaining: l.cfg.DailyCooldown - elapsed}
			}
		}

		acct.LastDailyClaim = now
		if choice == domain.RewardExp {
			acct.Exp += l.cfg.DailyExp
			grant = domain.RewardGrant{Choice: domain.RewardExp, Exp: l.cfg.DailyExp}
		} else {
			acct.Balance += l.cfg.DailyMoney
			grant = domain.RewardGrant{Choice: domain.RewardMoney, Money: l.cfg.DailyMoney}
		}
		grant.Balance = acct.Balance
		grant.TotalExp = acct.Exp
		grant.Level = acct.Level()
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.LedgerOps.WithLabelValues("daily").Inc()
	return &grant, nil
}

// ─── Exp Awards ─────────────────────────────────────────────────────────────

// GrantMessageExp awards a random amount of exp for chat activity, at most
// once per configured interval per user. Returns nil with no error when
// the interval has not elapsed — silent no-op, matching how chat exp is
// throttled.
func (l *Ledger) GrantMessageExp(userID string, now time.Time) (*domain.ExpGain, error) {
	var gain *domain.ExpGain

	_, err := l.mutate(userID, func(acct *domain.Account) error {
		if !acct.LastMessageExp.IsZero() && now.Sub(acct.LastMessageExp) < l.cfg.MessageExpInterval {
			return nil
		}

		span := l.cfg.MessageExpMax - l.cfg.MessageExpMin
		amount := l.cfg.MessageExpMin
		if span > 0 {
			amount += l.cfg.RandInt(span + 1)
		}

		oldLevel := acct.Level()
		acct.Exp += amount
		acct.LastMessageExp = now
		gain = &domain.ExpGain{
			Amount:   amount,
			TotalExp: acct.Exp,
			OldLevel: oldLevel,
			NewLevel: acct.Level(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if gain != nil {
		observability.LedgerOps.WithLabelValues("message_exp").Inc()
	}
	return gain, nil
}

// GrantGameReward pays out the configured reward for a game difficulty.
func (l *Ledger) GrantGameReward(userID, difficulty string) (*domain.ExpGain, error) {
	reward, ok := l.cfg.GameRewards[difficulty]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDifficulty, difficulty)
	}

	var gain domain.ExpGain
	_, err := l.mutate(userID, func(acct *domain.Account) error {
		oldLevel := acct.Level()
		acct.Exp += reward.Exp
		acct.Balance += reward.Money
		gain = domain.ExpGain{
			Amount:   reward.Exp,
			TotalExp: acct.Exp,
			OldLevel: oldLevel,
			NewLevel: acct.Level(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.LedgerOps.WithLabelValues("game_reward").Inc()
	return &gain, nil
}

// ─── Administrative Mutations ───────────────────────────────────────────────

// GrantExp adds exp to an account. Admin-only surface; amount must be
// positive (exp never decreases).
func (l *Ledger) GrantExp(userID string, amount int64) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrNonPositiveAmount
	}
	acct, err := l.mutate(userID, func(acct *domain.Account) error {
		acct.Exp += amount
		return nil
	})
	if err == nil {
		observability.LedgerOps.WithLabelValues("grant_exp").Inc()
	}
	return acct, err
}

// AdjustBalance applies a signed delta to a balance. A negative delta that
// would push the balance below zero fails with ErrInsufficientFunds and no
// mutation.
func (l *Ledger) AdjustBalance(userID string, delta int64) (domain.Account, error) {
	acct, err := l.mutate(userID, func(acct *domain.Account) error {
		if acct.Balance+delta < 0 {
			return domain.ErrInsufficientFunds
		}
		acct.Balance += delta
		return nil
	})
	if err == nil {
		observability.LedgerOps.WithLabelValues("adjust_balance").Inc()
	}
	return acct, err
}
