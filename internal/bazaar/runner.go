package bazaar

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xtrntr/bazaar/internal/blocks"
	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/observability"
	"github.com/xtrntr/bazaar/internal/storage"
)

// runner gives every operation the same execution envelope: one at a time,
// inside one store transaction, timed and logged.
type runner struct {
	mu      sync.Mutex
	store   storage.Store
	clock   blocks.Clock
	metrics *observability.Metrics
	log     logrus.FieldLogger
}

// atomic runs fn as one committed unit. now is read once per operation.
func (r *runner) atomic(ctx context.Context, op string, fields logrus.Fields, fn func(tx storage.Tx, now models.BlockNumber) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	now := r.clock.CurrentBlock()
	r.metrics.SetBlock(uint64(now))

	err := r.store.Atomic(ctx, func(tx storage.Tx) error {
		return fn(tx, now)
	})

	code := Code(err)
	r.metrics.ObserveOp(op, code, started)

	entry := r.log.WithFields(fields).WithField("op", op).WithField("block", now)
	switch code {
	case "ok":
		entry.Debug("operation committed")
	case "Internal":
		entry.WithError(err).Error("operation failed")
	default:
		entry.WithField("kind", code).Info("operation rejected")
	}
	return err
}

// view runs fn against a read-only snapshot.
func (r *runner) view(ctx context.Context, fn func(tx storage.Tx) error) error {
	return r.store.View(ctx, fn)
}
