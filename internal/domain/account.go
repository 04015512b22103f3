package domain

import "time"

// WelcomeBonus is the Mapos grant applied when an account is created.
const WelcomeBonus int64 = 100

// Account holds a user's current spendable Mapos balance.
// The balance is mutated only through the ledger service; it never goes
// negative and always equals the signed sum of the account's entries.
type Account struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewAccount creates a new Account instance with a zero balance.
// The welcome bonus is applied as a ledger entry, not set here, so that the
// balance stays reconcilable against the entry history from the start.
func NewAccount(userID string) *Account {
	now := time.Now().UTC()
	return &Account{
		UserID:    userID,
		Balance:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
