package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yuna-network/yuna/internal/domain"
	"github.com/yuna-network/yuna/internal/infra/sqlite"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := DefaultConfig()
	cfg.RandInt = func(n int64) int64 { return 0 } // deterministic exp
	return New(store, cfg)
}

func fund(t *testing.T, l *Ledger, userID string, amount int64) {
	t.Helper()
	if _, err := l.AdjustBalance(userID, amount); err != nil {
		t.Fatalf("fund %s: %v", userID, err)
	}
}

func balance(t *testing.T, l *Ledger, userID string) int64 {
	t.Helper()
	acct, err := l.GetAccount(userID)
	if err != nil {
		t.Fatalf("get %s: %v", userID, err)
	}
	return acct.Balance
}

// ─── Account Lifecycle ──────────────────────────────────────────────────────

func TestGetAccount_FirstTouch(t *testing.T) {
	l := testLedger(t)

	acct, err := l.GetAccount("newcomer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acct.Balance != 0 || acct.Exp != 0 {
		t.Errorf("fresh account = %+v, want zero balance and exp", acct)
	}
	if acct.Level() != 1 {
		t.Errorf("fresh account level = %d, want 1", acct.Level())
	}
}

// ─── Reserve / Commit / Refund ──────────────────────────────────────────────

func TestReserve_InsufficientFunds(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 50)

	_, err := l.Reserve("u1", 100)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := balance(t, l, "u1"); got != 50 {
		t.Errorf("failed reserve mutated balance: %d", got)
	}
}

func TestReserve_HoldsFunds(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 300)

	res, err := l.Reserve("u1", 100)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.State != domain.ReservationReserved {
		t.Errorf("state = %s, want RESERVED", res.State)
	}
	if got := balance(t, l, "u1"); got != 200 {
		t.Errorf("balance after reserve = %d, want 200", got)
	}
}

func TestRefund_RoundTrip(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 300)

	res, err := l.Reserve("u1", 100)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Refund(res); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := balance(t, l, "u1"); got != 300 {
		t.Errorf("balance after refund = %d, want exactly the pre-reserve 300", got)
	}
}

func TestCommit_Idempotent(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 100)

	res, _ := l.Reserve("u1", 100)
	if err := l.Commit(res); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := l.Commit(res); err != nil {
		t.Fatalf("second commit should be a no-op, got %v", err)
	}
	if got := balance(t, l, "u1"); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestRefund_Idempotent(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 100)

	res, _ := l.Reserve("u1", 100)
	if err := l.Refund(res); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := l.Refund(res); err != nil {
		t.Fatalf("second refund should be a no-op, got %v", err)
	}
	if got := balance(t, l, "u1"); got != 100 {
		t.Errorf("double refund changed balance: %d, want 100", got)
	}
}

func TestCommitAfterRefund_InvalidState(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 100)

	res, _ := l.Reserve("u1", 100)
	if err := l.Refund(res); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := l.Commit(res); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("commit after refund = %v, want ErrInvalidState", err)
	}
}

func TestRefundAfterCommit_InvalidState(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 100)

	res, _ := l.Reserve("u1", 100)
	if err := l.Commit(res); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := l.Refund(res); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("refund after commit = %v, want ErrInvalidState", err)
	}
	if got := balance(t, l, "u1"); got != 0 {
		t.Errorf("failed refund mutated balance: %d", got)
	}
}

func TestReserve_ConcurrentNoDoubleSpend(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 500)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var won int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Reserve("u1", 100)
			if err == nil {
				mu.Lock()
				won++
				mu.Unlock()
				_ = l.Commit(res)
			} else if !errors.Is(err, domain.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if won != 5 {
		t.Errorf("%d reservations won, want exactly 5 (500/100)", won)
	}
	if got := balance(t, l, "u1"); got != 0 {
		t.Errorf("final balance = %d, want 0", got)
	}
}

func TestReserveRefund_ConcurrentLinearizable(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 1000)

	// Every winning reservation is refunded, so the final balance must be
	// exactly the starting balance regardless of interleaving.
	const workers = 30
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Reserve("u1", 70)
			if err != nil {
				return
			}
			if err := l.Refund(res); err != nil {
				t.Errorf("refund: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := balance(t, l, "u1"); got != 1000 {
		t.Errorf("final balance = %d, want 1000", got)
	}
}

// ─── Store Fault Injection ──────────────────────────────────────────────────

// faultStore wraps a real store and fails Put for one key a limited number
// of times, simulating transient storage errors.
type faultStore struct {
	domain.AccountStore
	mu       sync.Mutex
	failKey  string
	failures int
	putErr   error
}

func (s *faultStore) Put(key string, data []byte, expectedVersion int64) error {
	s.mu.Lock()
	inject := s.failures > 0 && key == s.failKey
	if inject {
		s.failures--
	}
	s.mu.Unlock()
	if inject {
		return s.putErr
	}
	return s.AccountStore.Put(key, data, expectedVersion)
}

func faultLedger(t *testing.T) (*Ledger, *faultStore) {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fs := &faultStore{AccountStore: store, putErr: errors.New("disk I/O error")}
	cfg := DefaultConfig()
	cfg.RandInt = func(n int64) int64 { return 0 }
	return New(fs, cfg), fs
}

func TestRefund_StoreFailureKeepsReservationOpen(t *testing.T) {
	l, fs := faultLedger(t)
	fund(t, l, "u1", 100)

	res, err := l.Reserve("u1", 100)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	fs.mu.Lock()
	fs.failKey = "u1"
	fs.failures = 1
	fs.mu.Unlock()

	if err := l.Refund(res); err == nil {
		t.Fatal("refund with a failing store must error")
	}
	if res.State != domain.ReservationReserved {
		t.Fatalf("state after failed refund = %s, want RESERVED", res.State)
	}

	// Store healed; the retry settles the reservation and restores funds.
	if err := l.Refund(res); err != nil {
		t.Fatalf("retried refund: %v", err)
	}
	if res.State != domain.ReservationRefunded {
		t.Errorf("state after retried refund = %s, want REFUNDED", res.State)
	}
	if got := balance(t, l, "u1"); got != 100 {
		t.Errorf("balance after retried refund = %d, want 100", got)
	}
}

func TestTransfer_CreditFailureCompensatesDebit(t *testing.T) {
	l, fs := faultLedger(t)
	fund(t, l, "alice", 200)

	fs.mu.Lock()
	fs.failKey = "bob"
	fs.failures = 1
	fs.mu.Unlock()

	if err := l.Transfer("alice", "bob", 150); err == nil {
		t.Fatal("transfer with a failing credit must error")
	}
	if got := balance(t, l, "alice"); got != 200 {
		t.Errorf("alice = %d, want 200 (debit compensated)", got)
	}
	if got := balance(t, l, "bob"); got != 0 {
		t.Errorf("bob = %d, want 0", got)
	}
}

// ─── Transfers ──────────────────────────────────────────────────────────────

func TestTransfer(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "a", 200)

	if err := l.Transfer("a", "b", 50); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := balance(t, l, "a"); got != 150 {
		t.Errorf("a = %d, want 150", got)
	}
	if got := balance(t, l, "b"); got != 50 {
		t.Errorf("b = %d, want 50", got)
	}
}

func TestTransfer_InsufficientFundsLeavesBothUntouched(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "a", 30)
	fund(t, l, "b", 10)

	err := l.Transfer("a", "b", 50)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if balance(t, l, "a") != 30 || balance(t, l, "b") != 10 {
		t.Error("failed transfer left partial state")
	}
}

func TestTransfer_Validation(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "a", 100)

	if err := l.Transfer("a", "a", 10); !errors.Is(err, domain.ErrSelfTransfer) {
		t.Errorf("self transfer = %v, want ErrSelfTransfer", err)
	}
	if err := l.Transfer("a", "b", 0); !errors.Is(err, domain.ErrNonPositiveAmount) {
		t.Errorf("zero amount = %v, want ErrNonPositiveAmount", err)
	}
	if err := l.Transfer("a", "b", -5); !errors.Is(err, domain.ErrNonPositiveAmount) {
		t.Errorf("negative amount = %v, want ErrNonPositiveAmount", err)
	}
}

func TestTransfer_ConcurrentOppositeDirections(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "a", 1000)
	fund(t, l, "b", 1000)

	// Opposite-direction transfers exercise the ordered locking; the total
	// must be conserved and nothing may deadlock.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.Transfer("a", "b", 10)
		}()
		go func() {
			defer wg.Done()
			_ = l.Transfer("b", "a", 10)
		}()
	}
	wg.Wait()

	total := balance(t, l, "a") + balance(t, l, "b")
	if total != 2000 {
		t.Errorf("total = %d, want 2000 (conservation)", total)
	}
}

// ─── Daily Rewards ──────────────────────────────────────────────────────────

func TestClaimDaily_CooldownBoundary(t *testing.T) {
	l := testLedger(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := l.ClaimDaily("u1", domain.RewardMoney, base); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// One second short of the cooldown still fails.
	_, err := l.ClaimDaily("u1", domain.RewardMoney, base.Add(24*time.Hour-time.Second))
	var cd *domain.CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("early claim err = %v, want CooldownError", err)
	}
	if cd.Remaining != time.Second {
		t.Errorf("remaining = %s, want 1s", cd.Remaining)
	}

	// Exactly at the boundary it succeeds again.
	if _, err := l.ClaimDaily("u1", domain.RewardMoney, base.Add(24*time.Hour)); err != nil {
		t.Errorf("claim at boundary: %v", err)
	}
}

func TestClaimDaily_MoneyChoice(t *testing.T) {
	l := testLedger(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	grant, err := l.ClaimDaily("u1", domain.RewardMoney, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if grant.Money != 500 || grant.Balance != 500 {
		t.Errorf("grant = %+v, want 500 money", grant)
	}
}

func TestClaimDaily_ExpChoice(t *testing.T) {
	l := testLedger(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	grant, err := l.ClaimDaily("u1", domain.RewardExp, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if grant.Exp != 1000 || grant.TotalExp != 1000 {
		t.Errorf("grant = %+v, want 1000 exp", grant)
	}
	if grant.Level != domain.LevelForExp(1000) {
		t.Errorf("level = %d, want %d", grant.Level, domain.LevelForExp(1000))
	}
}

func TestClaimDaily_ConcurrentSingleWinner(t *testing.T) {
	l := testLedger(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var won int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.ClaimDaily("u1", domain.RewardMoney, now); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("%d claims won, want exactly 1", won)
	}
	if got := balance(t, l, "u1"); got != 500 {
		t.Errorf("balance = %d, want a single 500 grant", got)
	}
}

// ─── Exp Awards ─────────────────────────────────────────────────────────────

func TestGrantMessageExp_Throttled(t *testing.T) {
	l := testLedger(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	gain, err := l.GrantMessageExp("u1", base)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if gain == nil || gain.Amount != 5 { // RandInt pinned to 0 → min of range
		t.Fatalf("gain = %+v, want 5 exp", gain)
	}

	// Within the interval: silent no-op.
	gain, err = l.GrantMessageExp("u1", base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if gain != nil {
		t.Errorf("throttled grant = %+v, want nil", gain)
	}

	// After the interval: awards again.
	gain, err = l.GrantMessageExp("u1", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if gain == nil {
		t.Error("grant after interval should succeed")
	}
}

func TestGrantGameReward(t *testing.T) {
	l := testLedger(t)

	gain, err := l.GrantGameReward("u1", "hard")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if gain.Amount != 500 {
		t.Errorf("exp = %d, want 500", gain.Amount)
	}
	if got := balance(t, l, "u1"); got != 250 {
		t.Errorf("money = %d, want 250", got)
	}

	if _, err := l.GrantGameReward("u1", "nightmare"); !errors.Is(err, domain.ErrUnknownDifficulty) {
		t.Errorf("unknown difficulty = %v, want ErrUnknownDifficulty", err)
	}
}

// ─── Administrative Mutations ───────────────────────────────────────────────

func TestAdjustBalance_NeverNegative(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "u1", 100)

	_, err := l.AdjustBalance("u1", -200)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := balance(t, l, "u1"); got != 100 {
		t.Errorf("failed adjust mutated balance: %d", got)
	}

	if _, err := l.AdjustBalance("u1", -100); err != nil {
		t.Errorf("adjust to exactly zero should succeed: %v", err)
	}
}

func TestGrantExp_RejectsNonPositive(t *testing.T) {
	l := testLedger(t)
	if _, err := l.GrantExp("u1", 0); !errors.Is(err, domain.ErrNonPositiveAmount) {
		t.Errorf("err = %v, want ErrNonPositiveAmount", err)
	}
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

func TestLeaderboard_Ordering(t *testing.T) {
	l := testLedger(t)

	for id, exp := range map[string]int64{"x": 10, "y": 30, "z": 30, "w": 5} {
		if _, err := l.GrantExp(id, exp); err != nil {
			t.Fatalf("grant %s: %v", id, err)
		}
	}

	top, err := l.Leaderboard(10, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}

	wantOrder := []string{"y", "z", "x", "w"} // 30-tie broken by id
	if len(top) != len(wantOrder) {
		t.Fatalf("got %d entries, want %d", len(top), len(wantOrder))
	}
	for i, id := range wantOrder {
		if top[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, top[i].ID, id)
		}
	}
}

func TestLeaderboard_Pagination(t *testing.T) {
	l := testLedger(t)
	for id, exp := range map[string]int64{"x": 10, "y": 30, "z": 30, "w": 5} {
		if _, err := l.GrantExp(id, exp); err != nil {
			t.Fatalf("grant %s: %v", id, err)
		}
	}

	page, err := l.Leaderboard(2, 1)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(page) != 2 || page[0].ID != "z" || page[1].ID != "x" {
		t.Errorf("page = %v, want [z x]", page)
	}

	empty, err := l.Leaderboard(2, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("out-of-range offset returned %d entries", len(empty))
	}
}
