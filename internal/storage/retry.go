package storage

import (
	"context"
	"errors"
)

// MaxAttempts bounds how often a conflicting transaction is replayed.
const MaxAttempts = 3

// Retry runs fn until it succeeds, fails with an error other than ErrConflict,
// or MaxAttempts is reached. fn must be safe to replay: every write it made in a
// lost attempt is rolled back by the backend.
func Retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}
