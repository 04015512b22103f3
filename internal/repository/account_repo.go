package repository

import (
	"context"

	"mapmates-ledger/internal/domain"
)

// AccountRepository defines the interface for account data operations.
type AccountRepository interface {
	// CreateAccount inserts a new account using the provided DBExecutor.
	CreateAccount(ctx context.Context, q DBExecutor, account *domain.Account) error
	// GetAccountByUserID retrieves an account by its owning user ID.
	GetAccountByUserID(ctx context.Context, q DBExecutor, userID string) (*domain.Account, error)
	// GetAccountForUpdate retrieves an account and locks its row for the
	// duration of the surrounding transaction. Must be called with a
	// transactional DBExecutor.
	GetAccountForUpdate(ctx context.Context, q DBExecutor, userID string) (*domain.Account, error)
	// AddToBalance shifts the account balance by delta (negative to spend).
	AddToBalance(ctx context.Context, q DBExecutor, userID string, delta int64) error
	// ListUserIDs returns the user IDs of every account.
	ListUserIDs(ctx context.Context, q DBExecutor) ([]string, error)
	// ListTopAccounts returns up to limit accounts ordered by balance descending.
	ListTopAccounts(ctx context.Context, q DBExecutor, limit int) ([]domain.Account, error)
	// GetStats returns aggregate totals across all accounts.
	GetStats(ctx context.Context, q DBExecutor) (*domain.Stats, error)
}
