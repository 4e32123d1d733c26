package bazaar

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/storage"
)

// ProfileFields are the caller-supplied parts of a trader profile
type ProfileFields struct {
	Name     []byte        `json:"name"`
	Headline []byte        `json:"headline"`
	Country  uint8         `json:"country"`
	Method   []byte        `json:"method"`
	AskPrice models.Amount `json:"ask_price"`
	AskLimit models.Amount `json:"ask_limit"`
	BidPrice models.Amount `json:"bid_price"`
	BidLimit models.Amount `json:"bid_limit"`
}

// Limits are the four pricing fields of a profile
type Limits struct {
	AskPrice models.Amount `json:"ask_price"`
	AskLimit models.Amount `json:"ask_limit"`
	BidPrice models.Amount `json:"bid_price"`
	BidLimit models.Amount `json:"bid_limit"`
}

// Registry manages trader profiles
type Registry struct {
	run *runner
}

// Register makes caller a trader and returns its new index.
func (r *Registry) Register(ctx context.Context, caller models.AccountID, f ProfileFields) (models.TraderIndex, error) {
	var idx models.TraderIndex
	err := r.run.atomic(ctx, "register", logrus.Fields{"caller": caller}, func(tx storage.Tx, now models.BlockNumber) error {
		_, err := tx.GetTrader(caller)
		switch {
		case err == nil:
			return ErrAlreadyTrader
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("failed to look up trader: %w", err)
		}

		next, err := tx.NextSequence(storage.SeqTraders)
		if err != nil {
			return fmt.Errorf("failed to allocate trader index: %w", err)
		}
		idx = models.TraderIndex(next)

		p := &models.TraderProfile{
			Index:    idx,
			Name:     f.Name,
			Headline: f.Headline,
			Country:  f.Country,
			Method:   f.Method,
			AskPrice: f.AskPrice,
			AskLimit: f.AskLimit,
			BidPrice: f.BidPrice,
			BidLimit: f.BidLimit,
			Account:  caller,
			Created:  now,
		}
		if err := tx.InsertTrader(p); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return ErrAlreadyTrader
			}
			return fmt.Errorf("failed to insert trader: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return idx, nil
}

// UpdateProfile replaces the headline and payment method of caller's profile.
func (r *Registry) UpdateProfile(ctx context.Context, caller models.AccountID, headline, method []byte) error {
	return r.run.atomic(ctx, "update_profile", logrus.Fields{"caller": caller}, func(tx storage.Tx, _ models.BlockNumber) error {
		return r.mutate(tx, caller, func(p *models.TraderProfile) {
			p.Headline = headline
			p.Method = method
		})
	})
}

// UpdateLimits replaces the pricing fields of caller's profile.
func (r *Registry) UpdateLimits(ctx context.Context, caller models.AccountID, l Limits) error {
	return r.run.atomic(ctx, "update_limits", logrus.Fields{"caller": caller}, func(tx storage.Tx, _ models.BlockNumber) error {
		return r.mutate(tx, caller, func(p *models.TraderProfile) {
			p.AskPrice = l.AskPrice
			p.AskLimit = l.AskLimit
			p.BidPrice = l.BidPrice
			p.BidLimit = l.BidLimit
		})
	})
}

func (r *Registry) mutate(tx storage.Tx, caller models.AccountID, fn func(p *models.TraderProfile)) error {
	err := tx.MutateTrader(caller, func(p *models.TraderProfile) error {
		fn(p)
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotAuthorisedAsTrader
	}
	return err
}

// Lookup returns the profile of account.
func (r *Registry) Lookup(ctx context.Context, account models.AccountID) (*models.TraderProfile, error) {
	var p *models.TraderProfile
	err := r.run.view(ctx, func(tx storage.Tx) error {
		var err error
		p, err = tx.GetTrader(account)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotTrader
	}
	return p, err
}

// IndexOf returns the trader index of account.
func (r *Registry) IndexOf(ctx context.Context, account models.AccountID) (models.TraderIndex, error) {
	p, err := r.Lookup(ctx, account)
	if err != nil {
		return 0, err
	}
	return p.Index, nil
}

// ByIndex returns the profile registered under idx.
func (r *Registry) ByIndex(ctx context.Context, idx models.TraderIndex) (*models.TraderProfile, error) {
	var p *models.TraderProfile
	err := r.run.view(ctx, func(tx storage.Tx) error {
		var err error
		p, err = tx.GetTraderByIndex(idx)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotTrader
	}
	return p, err
}

// List returns every profile ordered by index.
func (r *Registry) List(ctx context.Context) ([]*models.TraderProfile, error) {
	var traders []*models.TraderProfile
	err := r.run.view(ctx, func(tx storage.Tx) error {
		var err error
		traders, err = tx.ListTraders()
		return err
	})
	return traders, err
}

// Count returns how many traders have registered.
func (r *Registry) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := r.run.view(ctx, func(tx storage.Tx) error {
		var err error
		n, err = tx.Sequence(storage.SeqTraders)
		return err
	})
	return n, err
}
