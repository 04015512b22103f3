package domain

import "time"

// Direction marks an entry as a credit or a debit against the balance.
type Direction string

const (
	DirectionEarn  Direction = "earn"
	DirectionSpend Direction = "spend"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionEarn || d == DirectionSpend
}

// Reward and cost amounts used by the MapMates application.
const (
	PlaceApprovedReward int64 = 50
	MiniGameWinReward   int64 = 20
	GlobalReward        int64 = 50
	ChatUnlockCost      int64 = 20
	SkipGameCost        int64 = 20
)

// Entry is one immutable record in an account's ledger history.
// Amount is always the positive magnitude of the change; Direction carries
// the sign.
type Entry struct {
	ID             int64     `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Amount         int64     `db:"amount" json:"amount"`
	Direction      Direction `db:"direction" json:"direction"`
	Reason         string    `db:"reason" json:"reason"`
	IdempotencyKey *string   `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NewEntry creates a new Entry instance. idemKey may be empty.
func NewEntry(userID string, amount int64, direction Direction, reason, idemKey string) *Entry {
	e := &Entry{
		UserID:    userID,
		Amount:    amount,
		Direction: direction,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if idemKey != "" {
		e.IdempotencyKey = &idemKey
	}
	return e
}
