// Package escrow derives and reads the custodial account holding in-flight trade funds.
package escrow

import (
	"context"

	"golang.org/x/crypto/blake2b"

	"github.com/xtrntr/bazaar/internal/ledger"
	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/storage"
)

// ModuleID names the bazaar's escrow account.
var ModuleID = [8]byte{'8', 'B', 'A', 'Z', 'A', 'A', 'R', '8'}

// accountTag separates module-derived accounts from every other account id.
var accountTag = []byte("modl")

// DeriveAccount maps a module identifier to its account. The mapping is
// one-way, so no private key exists for the result.
func DeriveAccount(id [8]byte) models.AccountID {
	buf := make([]byte, 0, len(accountTag)+len(id))
	buf = append(buf, accountTag...)
	buf = append(buf, id[:]...)
	return models.AccountID(blake2b.Sum256(buf))
}

// Account is the escrow account of one module
type Account struct {
	address models.AccountID
	store   storage.Store
	ledger  *ledger.Ledger
}

// NewAccount returns the escrow account derived from ModuleID.
func NewAccount(store storage.Store, l *ledger.Ledger) *Account {
	return &Account{address: DeriveAccount(ModuleID), store: store, ledger: l}
}

// Address returns the escrow account id.
func (a *Account) Address() models.AccountID {
	return a.address
}

// FreeBalance returns the funds currently held in escrow.
func (a *Account) FreeBalance(ctx context.Context) (models.Amount, error) {
	var bal models.Amount
	err := a.store.View(ctx, func(tx storage.Tx) error {
		var err error
		bal, err = a.ledger.FreeBalance(tx, a.address)
		return err
	})
	return bal, err
}
