package postgres

import (
	"errors"
	"fmt"

	"mapmates-ledger/internal/util"

	"github.com/lib/pq"
)

// PostgreSQL error codes of interest.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

func pqErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// storageErr wraps a driver-level failure so callers can classify it as
// retryable via util.ErrStorageUnavailable while keeping the original
// message.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, util.ErrStorageUnavailable, err)
}
