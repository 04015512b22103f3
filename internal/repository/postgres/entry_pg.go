package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mapmates-ledger/internal/domain"
	"mapmates-ledger/internal/repository"
	"mapmates-ledger/internal/util"

	"github.com/jmoiron/sqlx"
)

// EntryRepository implements repository.EntryRepository for PostgreSQL.
type EntryRepository struct{}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(db *sqlx.DB) repository.EntryRepository {
	return &EntryRepository{}
}

// AppendEntry inserts a new entry record using the provided DBExecutor.
// The entries table has no UPDATE path anywhere in the codebase; appending
// is the only write.
func (r *EntryRepository) AppendEntry(ctx context.Context, q repository.DBExecutor, entry *domain.Entry) error {
	query := `INSERT INTO entries (user_id, amount, direction, reason, idempotency_key, created_at)
              VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := q.QueryRowContext(ctx, query,
		entry.UserID,
		entry.Amount,
		entry.Direction,
		entry.Reason,
		entry.IdempotencyKey,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		switch pqErrorCode(err) {
		case codeUniqueViolation:
			return util.ErrDuplicateEntry
		case codeForeignKeyViolation:
			return util.ErrAccountNotFound
		}
		return storageErr("failed to append ledger entry", err)
	}
	return nil
}

// GetEntriesByUserID retrieves a paginated slice of an account's entries,
// most-recent-first, plus the total entry count.
// It performs two queries: one for the data and one for the count.
func (r *EntryRepository) GetEntriesByUserID(ctx context.Context, q repository.DBExecutor, userID string, limit, offset int) ([]domain.Entry, int64, error) {
	entries := []domain.Entry{}

	query := `
		SELECT id, user_id, amount, direction, reason, idempotency_key, created_at
		FROM entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	if err := q.SelectContext(ctx, &entries, query, userID, limit, offset); err != nil {
		return nil, 0, storageErr(fmt.Sprintf("failed to fetch entries for account %q", userID), err)
	}
	for i := range entries {
		if err := validateEntry(&entries[i]); err != nil {
			return nil, 0, err
		}
	}

	var totalCount int64
	countQuery := `SELECT COUNT(*) FROM entries WHERE user_id = $1`
	if err := q.GetContext(ctx, &totalCount, countQuery, userID); err != nil {
		return nil, 0, storageErr(fmt.Sprintf("failed to count entries for account %q", userID), err)
	}

	return entries, totalCount, nil
}

// GetEntryByIdempotencyKey retrieves the entry recorded under key.
func (r *EntryRepository) GetEntryByIdempotencyKey(ctx context.Context, q repository.DBExecutor, key string) (*domain.Entry, error) {
	var entry domain.Entry
	query := `SELECT id, user_id, amount, direction, reason, idempotency_key, created_at
              FROM entries WHERE idempotency_key = $1`
	err := q.GetContext(ctx, &entry, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, storageErr(fmt.Sprintf("failed to get entry by idempotency key %q", key), err)
	}
	if err := validateEntry(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// validateEntry checks a decoded row against the domain invariants so that a
// damaged record surfaces as ErrCorruptRecord instead of leaking downstream.
func validateEntry(entry *domain.Entry) error {
	if !entry.Direction.Valid() {
		return fmt.Errorf("entry %d: %w: unknown direction %q", entry.ID, util.ErrCorruptRecord, entry.Direction)
	}
	if entry.Amount <= 0 {
		return fmt.Errorf("entry %d: %w: non-positive amount %d", entry.ID, util.ErrCorruptRecord, entry.Amount)
	}
	return nil
}
