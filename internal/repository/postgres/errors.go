package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/marketsage/journey-engine/internal/repository"
)

// storeErr wraps a failed statement so callers can match
// repository.ErrUnavailable with errors.Is. A pq.Error means the server
// answered and rejected the statement, so it keeps its own identity;
// everything else (dead connection, pool exhaustion, ctx expiry) is a
// connection-class failure.
func storeErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
}
