package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EnsureGenesis returns the genesis recorded in s, recording proposed first
// if the store has none. Stored times keep microsecond precision.
func EnsureGenesis(ctx context.Context, s Store, proposed time.Time) (time.Time, error) {
	var genesis time.Time
	err := s.Atomic(ctx, func(tx Tx) error {
		g, err := tx.Genesis()
		switch {
		case err == nil:
			genesis = g
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}
		genesis = proposed.UTC().Truncate(time.Microsecond)
		return tx.SetGenesis(genesis)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load genesis: %w", err)
	}
	return genesis, nil
}
