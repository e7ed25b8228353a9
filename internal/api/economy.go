package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yuna-network/yuna/internal/domain"
)

// ─── Economy API ────────────────────────────────────────────────────────────
// REST surface for the chat frontend:
//
// GET  /api/economy/profile/{id}    — balance, exp, level, progress
// GET  /api/economy/leaderboard     — exp ranking with limit/offset
// POST /api/economy/daily           — claim the daily reward (money or exp)
// POST /api/economy/transfer        — move money between users
// POST /api/economy/message-exp     — award chat-activity exp
// POST /api/economy/game-reward     — pay out a game win
// POST /api/economy/grant-exp       — admin exp grant
// POST /api/economy/adjust-balance  — admin balance adjustment

// HandleProfile returns one user's economy profile.
// GET /api/economy/profile/{id}
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	acct, err := s.ledger.GetAccount(userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                acct.ID,
		"balance":           acct.Balance,
		"exp":               acct.Exp,
		"level":             acct.Level(),
		"exp_to_next_level": domain.ExpToNextLevel(acct.Exp),
	})
}

// handleLeaderboard returns the exp ranking.
// GET /api/economy/leaderboard?limit=10&offset=0
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	offset := queryInt(r, "offset", 0)

	accounts, err := s.ledger.Leaderboard(limit, offset)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	entries := make([]map[string]interface{}, 0, len(accounts))
	for i, acct := range accounts {
		entries = append(entries, map[string]interface{}{
			"rank":    offset + i + 1,
			"id":      acct.ID,
			"exp":     acct.Exp,
			"level":   acct.Level(),
			"balance": acct.Balance,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// handleDaily claims the daily reward.
// POST /api/economy/daily {"user_id": "...", "choice": "money"|"exp"}
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string              `json:"user_id"`
		Choice domain.RewardChoice `json:"choice"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	grant, err := s.ledger.ClaimDaily(body.UserID, body.Choice, time.Now())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// handleTransfer moves money between users.
// POST /api/economy/transfer {"from": "...", "to": "...", "amount": 50}
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount int64  `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.From == "" || body.To == "" {
		writeError(w, http.StatusBadRequest, "missing from/to")
		return
	}

	if err := s.ledger.Transfer(body.From, body.To, body.Amount); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":   body.From,
		"to":     body.To,
		"amount": body.Amount,
	})
}

// handleMessageExp awards chat-activity exp (throttled per user).
// POST /api/economy/message-exp {"user_id": "..."}
func (s *Server) handleMessageExp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	gain, err := s.ledger.GrantMessageExp(body.UserID, time.Now())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if gain == nil {
		// Within the throttle window: nothing awarded.
		writeJSON(w, http.StatusOK, map[string]interface{}{"awarded": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"awarded":    true,
		"amount":     gain.Amount,
		"total_exp":  gain.TotalExp,
		"old_level":  gain.OldLevel,
		"new_level":  gain.NewLevel,
		"leveled_up": gain.LeveledUp(),
	})
}

// handleGameReward pays out a game win.
// POST /api/economy/game-reward {"user_id": "...", "difficulty": "hard"}
func (s *Server) handleGameReward(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     string `json:"user_id"`
		Difficulty string `json:"difficulty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	gain, err := s.ledger.GrantGameReward(body.UserID, body.Difficulty)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gain)
}

// handleGrantExp is the admin exp grant.
// POST /api/economy/grant-exp {"user_id": "...", "amount": 100}
func (s *Server) handleGrantExp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Amount int64  `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	acct, err := s.ledger.GrantExp(body.UserID, body.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    acct.ID,
		"exp":   acct.Exp,
		"level": acct.Level(),
	})
}

// handleAdjustBalance is the admin balance adjustment (delta may be
// negative but can never push a balance below zero).
// POST /api/economy/adjust-balance {"user_id": "...", "delta": -50}
func (s *Server) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Delta  int64  `json:"delta"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	acct, err := s.ledger.AdjustBalance(body.UserID, body.Delta)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      acct.ID,
		"balance": acct.Balance,
	})
}

// ─── Error Mapping ──────────────────────────────────────────────────────────

// writeLedgerError maps domain errors onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	var cooldown *domain.CooldownError
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrNonPositiveAmount),
		errors.Is(err, domain.ErrUnknownDifficulty),
		errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", strconv.Itoa(int(cooldown.Remaining.Seconds())))
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrActionInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeBody decodes a JSON body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
