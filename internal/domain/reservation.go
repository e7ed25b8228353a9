package domain

// ─── Reservations ───────────────────────────────────────────────────────────
// A reservation is a pending debit: funds are held but reversible until the
// paid action either completes (commit) or fails (refund). Each reservation
// reaches exactly one terminal state.

// ReservationState tracks a reservation through its lifecycle.
type ReservationState string

const (
	ReservationReserved  ReservationState = "RESERVED"
	ReservationCommitted ReservationState = "COMMITTED"
	ReservationRefunded  ReservationState = "REFUNDED"
)

// Reservation links a paid action to a ledger debit.
type Reservation struct {
	ID     string           `json:"id"`
	UserID string           `json:"user_id"`
	Amount int64            `json:"amount"`
	State  ReservationState `json:"state"`
}

// Terminal reports whether the reservation has reached a final state.
func (r *Reservation) Terminal() bool {
	return r.State == ReservationCommitted || r.State == ReservationRefunded
}
