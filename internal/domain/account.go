// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "time"

// ─── Account Types ──────────────────────────────────────────────────────────

// Account is the per-user economy record. It is owned exclusively by the
// ledger; no other component mutates its fields. Level is derived from Exp
// and never stored.
type Account struct {
	ID             string    `json:"id"`
	Balance        int64     `json:"balance"`
	Exp            int64     `json:"exp"`
	LastDailyClaim time.Time `json:"last_daily_claim,omitempty"`
	LastMessageExp time.Time `json:"last_message_exp,omitempty"`

	// Version is the optimistic-concurrency counter maintained by the
	// account store. Zero means the account has never been persisted.
	Version int64 `json:"-"`
}

// NewAccount returns a fresh account with default values.
func NewAccount(id string) Account {
	return Account{ID: id}
}

// Level returns the account's current level.
func (a Account) Level() int {
	return LevelForExp(a.Exp)
}

// ─── Level Math ─────────────────────────────────────────────────────────────
// Advancing from level L to L+1 costs 100·L exp, so the cumulative exp
// required to reach level L is 50·L·(L−1). Accounts start at level 1.

// LevelForExp derives the level for a cumulative exp total.
// The function is pure and monotonically non-decreasing in exp.
func LevelForExp(exp int64) int {
	level := 1
	for exp >= ExpForLevel(level+1) {
		level++
	}
	return level
}

// ExpForLevel returns the cumulative exp required to reach a level.
func ExpForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level)
	return 50 * l * (l - 1)
}

// ExpToNextLevel returns how much exp remains until the next level.
func ExpToNextLevel(exp int64) int64 {
	next := LevelForExp(exp) + 1
	return ExpForLevel(next) - exp
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// RewardChoice selects which daily reward a user claims.
type RewardChoice string

const (
	RewardMoney RewardChoice = "money"
	RewardExp   RewardChoice = "exp"
)

// RewardGrant describes what a claim actually granted.
type RewardGrant struct {
	Choice   RewardChoice `json:"choice"`
	Money    int64        `json:"money,omitempty"`
	Exp      int64        `json:"exp,omitempty"`
	Balance  int64        `json:"balance"`
	TotalExp int64        `json:"total_exp"`
	Level    int          `json:"level"`
}

// GameReward is the payout for winning a game at a given difficulty.
type GameReward struct {
	Exp   int64 `json:"exp" toml:"exp"`
	Money int64 `json:"money" toml:"money"`
}

// ExpGain reports an exp award and any level change it caused.
type ExpGain struct {
	Amount   int64 `json:"amount"`
	TotalExp int64 `json:"total_exp"`
	OldLevel int   `json:"old_level"`
	NewLevel int   `json:"new_level"`
}

// LeveledUp reports whether the gain crossed a level boundary.
func (g ExpGain) LeveledUp() bool { return g.NewLevel > g.OldLevel }
