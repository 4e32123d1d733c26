// Package ledger moves free balance between accounts.
//
// It plays the host currency for the bazaar: every call takes the storage
// transaction of the operation it serves, so a transfer commits or rolls back
// together with the trade record it pays for.
package ledger

import (
	"errors"
	"fmt"

	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/storage"
)

// ExistenceRequirement says whether a transfer may drain the source account.
type ExistenceRequirement int

const (
	// KeepAlive fails a transfer that would leave the source below the existential deposit.
	KeepAlive ExistenceRequirement = iota
	// AllowDeath lets the source fall below the existential deposit; an account
	// drained to zero is removed.
	AllowDeath
)

var (
	// ErrInsufficientBalance is returned when the source cannot cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrKeepAlive is returned when KeepAlive would be violated.
	ErrKeepAlive = errors.New("transfer would kill account")
	// ErrExistentialDeposit is returned when a new account would receive less than the existential deposit.
	ErrExistentialDeposit = errors.New("value below existential deposit")
	// ErrOverflow is returned when the destination balance would exceed 128 bits.
	ErrOverflow = errors.New("balance overflow")
)

// Ledger applies transfers with a fixed existential deposit
type Ledger struct {
	existentialDeposit models.Amount
}

// New creates a ledger. A zero existential deposit disables the minimum balance rules.
func New(existentialDeposit models.Amount) *Ledger {
	return &Ledger{existentialDeposit: existentialDeposit}
}

// ExistentialDeposit returns the minimum balance of a live account.
func (l *Ledger) ExistentialDeposit() models.Amount {
	return l.existentialDeposit
}

// FreeBalance returns the spendable balance of who.
func (l *Ledger) FreeBalance(b storage.Balances, who models.AccountID) (models.Amount, error) {
	return b.Balance(who)
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(b storage.Balances, from, to models.AccountID, amount models.Amount, req ExistenceRequirement) error {
	if amount.IsZero() || from == to {
		return nil
	}

	fromBal, err := b.Balance(from)
	if err != nil {
		return fmt.Errorf("failed to read source balance: %w", err)
	}
	newFrom, underflow := fromBal.Sub(amount)
	if underflow {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	if req == KeepAlive && newFrom.Cmp(l.existentialDeposit) < 0 {
		return ErrKeepAlive
	}

	toBal, err := b.Balance(to)
	if err != nil {
		return fmt.Errorf("failed to read destination balance: %w", err)
	}
	newTo, overflow := toBal.Add(amount)
	if overflow {
		return ErrOverflow
	}
	if toBal.IsZero() && newTo.Cmp(l.existentialDeposit) < 0 {
		return ErrExistentialDeposit
	}

	if err := b.SetBalance(from, newFrom); err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}
	if err := b.SetBalance(to, newTo); err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}
	return nil
}

// Deposit credits who with newly issued funds. Used by the development faucet and seeding.
func (l *Ledger) Deposit(b storage.Balances, who models.AccountID, amount models.Amount) error {
	if amount.IsZero() {
		return nil
	}
	bal, err := b.Balance(who)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	newBal, overflow := bal.Add(amount)
	if overflow {
		return ErrOverflow
	}
	if bal.IsZero() && newBal.Cmp(l.existentialDeposit) < 0 {
		return ErrExistentialDeposit
	}
	return b.SetBalance(who, newBal)
}

// TotalIssuance sums every balance.
func (l *Ledger) TotalIssuance(b storage.Balances) (models.Amount, error) {
	balances, err := b.ListBalances()
	if err != nil {
		return models.Amount{}, err
	}
	var total models.Amount
	for _, bal := range balances {
		var overflow bool
		if total, overflow = total.Add(bal); overflow {
			return models.Amount{}, ErrOverflow
		}
	}
	return total, nil
}
