// Package storage defines the durable key->record maps behind the bazaar.
//
// Every operation runs inside one Store.Atomic call so that ledger transfers
// and record mutations commit together or not at all.
package storage

import (
	"context"
	"time"

	"github.com/xtrntr/bazaar/internal/models"
)

// Sequence names.
const (
	SeqTraders = "traders"
	SeqTrades  = "trades"
)

// Store opens transactions over the bazaar state.
type Store interface {
	// Atomic runs fn in a read-write transaction. Returning an error from fn
	// discards every write made through tx.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying database.
	Close() error
}

// Tx is the set of maps reachable inside one transaction.
type Tx interface {
	Traders
	Trades
	Sequences
	Balances
	Credentials
	Meta
}

// Traders stores trader profiles keyed by account, with a secondary key on index.
type Traders interface {
	// InsertTrader adds a profile. Returns ErrDuplicateKey if the account or index exists.
	InsertTrader(p *models.TraderProfile) error

	// GetTrader retrieves the profile of an account. Returns ErrNotFound if not exists.
	GetTrader(account models.AccountID) (*models.TraderProfile, error)

	// GetTraderByIndex retrieves a profile by its index. Returns ErrNotFound if not exists.
	GetTraderByIndex(idx models.TraderIndex) (*models.TraderProfile, error)

	// MutateTrader loads the profile of account, applies fn and writes it back.
	// Nothing is written if fn returns an error. Returns ErrNotFound if not exists.
	MutateTrader(account models.AccountID, fn func(p *models.TraderProfile) error) error

	// ListTraders retrieves all profiles ordered by index ASC.
	ListTraders() ([]*models.TraderProfile, error)
}

// Trades stores trade records keyed by trade index.
type Trades interface {
	// InsertTrade adds a trade. Returns ErrDuplicateKey if the id exists.
	InsertTrade(t *models.Trade) error

	// GetTrade retrieves a trade. Returns ErrNotFound if not exists.
	GetTrade(id models.TradeIndex) (*models.Trade, error)

	// MutateTrade loads trade id, applies fn and writes it back.
	// Nothing is written if fn returns an error. Returns ErrNotFound if not exists.
	MutateTrade(id models.TradeIndex, fn func(t *models.Trade) error) error

	// ListTrades retrieves the trades matching f ordered by id ASC.
	ListTrades(f TradeFilter) ([]*models.Trade, error)

	// OpenTrades returns the open trade counter of a seller, 0 if never set.
	OpenTrades(seller models.TraderIndex) (uint64, error)

	// SetOpenTrades overwrites the open trade counter of a seller.
	SetOpenTrades(seller models.TraderIndex, n uint64) error
}

// TradeFilter narrows ListTrades. Nil fields match everything.
type TradeFilter struct {
	Buyer  *models.AccountID
	Seller *models.TraderIndex
	State  *models.TradeState
}

// Match reports whether t passes the filter.
func (f TradeFilter) Match(t *models.Trade) bool {
	if f.Buyer != nil && t.Buyer != *f.Buyer {
		return false
	}
	if f.Seller != nil && t.Seller != *f.Seller {
		return false
	}
	if f.State != nil && t.State != *f.State {
		return false
	}
	return true
}

// Sequences hands out dense, gap-free counters.
type Sequences interface {
	// NextSequence returns the current value of the named counter and increments it.
	NextSequence(name string) (uint64, error)

	// Sequence returns the current value of the named counter, 0 if never used.
	Sequence(name string) (uint64, error)
}

// Balances stores free balances. An absent account has balance 0.
type Balances interface {
	// Balance returns the free balance of an account.
	Balance(account models.AccountID) (models.Amount, error)

	// SetBalance overwrites the free balance. Setting 0 removes the account.
	SetBalance(account models.AccountID, amount models.Amount) error

	// ListBalances returns every account holding a non-zero balance.
	ListBalances() (map[models.AccountID]models.Amount, error)
}

// Credentials stores login credentials keyed by username.
type Credentials interface {
	// InsertCredential adds a credential. Returns ErrDuplicateKey if the username exists.
	InsertCredential(c *models.Credential) error

	// GetCredential retrieves a credential. Returns ErrNotFound if not exists.
	GetCredential(username string) (*models.Credential, error)
}

// Meta stores settings fixed when the store is first used.
type Meta interface {
	// Genesis returns the time of block 0. Returns ErrNotFound if never set.
	Genesis() (time.Time, error)

	// SetGenesis records the time of block 0.
	SetGenesis(at time.Time) error
}
