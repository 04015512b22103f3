package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mapmates-ledger/internal/domain"
	"mapmates-ledger/internal/repository"
	"mapmates-ledger/internal/util"

	"github.com/jmoiron/sqlx"
)

// AccountRepository implements repository.AccountRepository for PostgreSQL.
type AccountRepository struct{}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sqlx.DB) repository.AccountRepository {
	return &AccountRepository{}
}

// CreateAccount inserts a new account using the provided DBExecutor.
func (r *AccountRepository) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.Account) error {
	query := `INSERT INTO accounts (user_id, balance, created_at, updated_at)
              VALUES ($1, $2, $3, $4)`
	_, err := q.ExecContext(ctx, query, account.UserID, account.Balance, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if pqErrorCode(err) == codeUniqueViolation {
			return util.ErrDuplicateAccount
		}
		return storageErr("failed to create account", err)
	}
	return nil
}

// GetAccountByUserID retrieves an account by its owning user ID.
func (r *AccountRepository) GetAccountByUserID(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Account, error) {
	query := `SELECT user_id, balance, created_at, updated_at FROM accounts WHERE user_id = $1`
	return r.getAccount(ctx, q, query, userID)
}

// GetAccountForUpdate retrieves an account and takes a row lock on it,
// serializing concurrent mutations of the same account for the lifetime of
// the surrounding transaction. Accounts lock independently of one another.
func (r *AccountRepository) GetAccountForUpdate(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Account, error) {
	query := `SELECT user_id, balance, created_at, updated_at FROM accounts WHERE user_id = $1 FOR UPDATE`
	return r.getAccount(ctx, q, query, userID)
}

func (r *AccountRepository) getAccount(ctx context.Context, q repository.DBExecutor, query, userID string) (*domain.Account, error) {
	var account domain.Account
	err := q.GetContext(ctx, &account, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrAccountNotFound
		}
		return nil, storageErr(fmt.Sprintf("failed to get account %q", userID), err)
	}
	if account.Balance < 0 {
		// The CHECK constraint should make this unreachable.
		return nil, fmt.Errorf("account %q: %w: negative balance %d", userID, util.ErrCorruptRecord, account.Balance)
	}
	return &account, nil
}

// AddToBalance shifts the account balance by delta using the provided
// DBExecutor. Callers hold the row lock, so the arithmetic is race-free.
func (r *AccountRepository) AddToBalance(ctx context.Context, q repository.DBExecutor, userID string, delta int64) error {
	query := `UPDATE accounts SET balance = balance + $1, updated_at = $2 WHERE user_id = $3`
	result, err := q.ExecContext(ctx, query, delta, time.Now().UTC(), userID)
	if err != nil {
		if pqErrorCode(err) == codeCheckViolation {
			// balance >= 0 constraint: backstop for the service-level check.
			return util.ErrInsufficientFunds
		}
		return storageErr(fmt.Sprintf("failed to update balance for account %q", userID), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr(fmt.Sprintf("failed to get rows affected for account %q", userID), err)
	}
	if rowsAffected == 0 {
		return util.ErrAccountNotFound
	}
	return nil
}

// ListUserIDs returns the user IDs of every account.
func (r *AccountRepository) ListUserIDs(ctx context.Context, q repository.DBExecutor) ([]string, error) {
	userIDs := []string{}
	query := `SELECT user_id FROM accounts ORDER BY user_id`
	if err := q.SelectContext(ctx, &userIDs, query); err != nil {
		return nil, storageErr("failed to list account user IDs", err)
	}
	return userIDs, nil
}

// ListTopAccounts returns up to limit accounts ordered by balance descending.
// Ties break on user ID so the ordering is stable.
func (r *AccountRepository) ListTopAccounts(ctx context.Context, q repository.DBExecutor, limit int) ([]domain.Account, error) {
	accounts := []domain.Account{}
	query := `SELECT user_id, balance, created_at, updated_at FROM accounts
              ORDER BY balance DESC, user_id ASC LIMIT $1`
	if err := q.SelectContext(ctx, &accounts, query, limit); err != nil {
		return nil, storageErr("failed to list top accounts", err)
	}
	return accounts, nil
}

// GetStats returns aggregate totals across all accounts.
func (r *AccountRepository) GetStats(ctx context.Context, q repository.DBExecutor) (*domain.Stats, error) {
	var stats domain.Stats
	query := `SELECT COUNT(*) AS total_accounts, COALESCE(SUM(balance), 0) AS total_mapos FROM accounts`
	if err := q.GetContext(ctx, &stats, query); err != nil {
		return nil, storageErr("failed to get account stats", err)
	}
	return &stats, nil
}
