// Package bazaar implements the peer-to-peer escrow marketplace: a registry of
// traders and a trade lifecycle secured by seller-funded escrow.
//
// Every mutating operation runs alone and inside one store transaction, so
// ledger transfers and record changes commit together.
package bazaar

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/xtrntr/bazaar/internal/blocks"
	"github.com/xtrntr/bazaar/internal/escrow"
	"github.com/xtrntr/bazaar/internal/events"
	"github.com/xtrntr/bazaar/internal/ledger"
	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/observability"
	"github.com/xtrntr/bazaar/internal/storage"
)

// Options wires the collaborators of a Bazaar. Only Store and Clock are required.
type Options struct {
	Store   storage.Store
	Clock   blocks.Clock
	Ledger  *ledger.Ledger
	Events  events.Publisher
	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
}

// Bazaar is the marketplace: its trader registry and trade ledger share one
// store and one operation lock
type Bazaar struct {
	*Registry
	*TradeLedger

	ledger *ledger.Ledger
	escrow *escrow.Account
	run    *runner
}

// New creates a Bazaar.
func New(opts Options) (*Bazaar, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.New(models.Amount{})
	}
	if opts.Logger == nil {
		log := logrus.New()
		log.SetLevel(logrus.WarnLevel)
		opts.Logger = log
	}

	run := &runner{
		store:   opts.Store,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		log:     opts.Logger.WithField("component", "bazaar"),
	}
	esc := escrow.NewAccount(opts.Store, opts.Ledger)

	return &Bazaar{
		Registry: &Registry{run: run},
		TradeLedger: &TradeLedger{
			run:    run,
			ledger: opts.Ledger,
			escrow: esc,
			events: opts.Events,
		},
		ledger: opts.Ledger,
		escrow: esc,
		run:    run,
	}, nil
}

// Escrow returns the escrow account.
func (b *Bazaar) Escrow() *escrow.Account {
	return b.escrow
}

// CurrentBlock returns the block height operations run at.
func (b *Bazaar) CurrentBlock() models.BlockNumber {
	return b.run.clock.CurrentBlock()
}

// Balance returns the free balance of who.
func (b *Bazaar) Balance(ctx context.Context, who models.AccountID) (models.Amount, error) {
	var bal models.Amount
	err := b.run.view(ctx, func(tx storage.Tx) error {
		var err error
		bal, err = b.ledger.FreeBalance(tx, who)
		return err
	})
	return bal, err
}

// Deposit issues amount to who. Used for seeding development accounts.
func (b *Bazaar) Deposit(ctx context.Context, who models.AccountID, amount models.Amount) error {
	return b.run.atomic(ctx, "deposit", logrus.Fields{"account": who, "amount": amount}, func(tx storage.Tx, _ models.BlockNumber) error {
		if err := b.ledger.Deposit(tx, who, amount); err != nil {
			return fmt.Errorf("failed to deposit: %w", err)
		}
		return nil
	})
}
