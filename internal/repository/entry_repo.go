package repository

import (
	"context"

	"mapmates-ledger/internal/domain"
)

// EntryRepository defines the interface for ledger entry data operations.
// Entries are append-only: there is deliberately no update or delete.
type EntryRepository interface {
	// AppendEntry adds a new entry record using the provided DBExecutor.
	AppendEntry(ctx context.Context, q DBExecutor, entry *domain.Entry) error
	// GetEntriesByUserID retrieves an account's entries most-recent-first,
	// along with the total entry count for pagination.
	GetEntriesByUserID(ctx context.Context, q DBExecutor, userID string, limit, offset int) ([]domain.Entry, int64, error)
	// GetEntryByIdempotencyKey retrieves the entry recorded under the given
	// idempotency key, or util.ErrNotFound when no such entry exists.
	GetEntryByIdempotencyKey(ctx context.Context, q DBExecutor, key string) (*domain.Entry, error)
}
