package badgerstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/storage"
)

// InsertTrader stores the profile under its account and its index.
func (t *tx) InsertTrader(p *models.TraderProfile) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	acctKey := key(prefixTrader, p.Account[:])
	idxKey := key(prefixTraderIdx, be64(uint64(p.Index)))

	for _, k := range [][]byte{acctKey, idxKey} {
		found, err := t.exists(k)
		if err != nil {
			return err
		}
		if found {
			return storage.ErrDuplicateKey
		}
	}

	if err := t.putJSON(acctKey, p); err != nil {
		return err
	}
	return t.set(idxKey, p.Account[:])
}

// GetTrader retrieves a profile by account.
func (t *tx) GetTrader(account models.AccountID) (*models.TraderProfile, error) {
	var p models.TraderProfile
	if err := t.getJSON(key(prefixTrader, account[:]), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetTraderByIndex resolves the index to an account, then loads the profile.
func (t *tx) GetTraderByIndex(idx models.TraderIndex) (*models.TraderProfile, error) {
	raw, err := t.get(key(prefixTraderIdx, be64(uint64(idx))))
	if err != nil {
		return nil, err
	}
	var account models.AccountID
	if len(raw) != len(account) {
		return nil, fmt.Errorf("trader index %d maps to %d bytes", idx, len(raw))
	}
	copy(account[:], raw)
	return t.GetTrader(account)
}

// MutateTrader applies fn to the stored profile of account.
func (t *tx) MutateTrader(account models.AccountID, fn func(p *models.TraderProfile) error) error {
	p, err := t.GetTrader(account)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	if p.Account != account {
		return fmt.Errorf("trader account cannot change: %w", storage.ErrInvalidInput)
	}
	return t.putJSON(key(prefixTrader, account[:]), p)
}

// ListTraders returns every profile in index order.
func (t *tx) ListTraders() ([]*models.TraderProfile, error) {
	var traders []*models.TraderProfile
	err := t.scan(prefixTraderIdx, func(_, v []byte) error {
		var account models.AccountID
		copy(account[:], v)
		p, err := t.GetTrader(account)
		if err != nil {
			return err
		}
		traders = append(traders, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return traders, nil
}

// InsertTrade stores a new trade.
func (t *tx) InsertTrade(trade *models.Trade) error {
	if trade == nil {
		return storage.ErrInvalidInput
	}
	k := key(prefixTrade, be64(uint64(trade.ID)))
	found, err := t.exists(k)
	if err != nil {
		return err
	}
	if found {
		return storage.ErrDuplicateKey
	}
	return t.putJSON(k, trade)
}

// GetTrade retrieves a trade by id.
func (t *tx) GetTrade(id models.TradeIndex) (*models.Trade, error) {
	var trade models.Trade
	if err := t.getJSON(key(prefixTrade, be64(uint64(id))), &trade); err != nil {
		return nil, err
	}
	return &trade, nil
}

// MutateTrade applies fn to the stored trade.
func (t *tx) MutateTrade(id models.TradeIndex, fn func(t *models.Trade) error) error {
	trade, err := t.GetTrade(id)
	if err != nil {
		return err
	}
	if err := fn(trade); err != nil {
		return err
	}
	if trade.ID != id {
		return fmt.Errorf("trade id cannot change: %w", storage.ErrInvalidInput)
	}
	return t.putJSON(key(prefixTrade, be64(uint64(id))), trade)
}

// ListTrades scans every trade and keeps the ones matching f.
func (t *tx) ListTrades(f storage.TradeFilter) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := t.scan(prefixTrade, func(k, v []byte) error {
		var trade models.Trade
		if err := json.Unmarshal(v, &trade); err != nil {
			return fmt.Errorf("failed to decode %q: %w", k, err)
		}
		if f.Match(&trade) {
			trades = append(trades, &trade)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// OpenTrades returns the seller's open trade counter.
func (t *tx) OpenTrades(seller models.TraderIndex) (uint64, error) {
	return t.getUint64(key(prefixOpen, be64(uint64(seller))))
}

// SetOpenTrades overwrites the seller's open trade counter.
func (t *tx) SetOpenTrades(seller models.TraderIndex, n uint64) error {
	return t.set(key(prefixOpen, be64(uint64(seller))), be64(n))
}

// NextSequence returns the counter value and stores value+1.
func (t *tx) NextSequence(name string) (uint64, error) {
	k := key(prefixSeq, []byte(name))
	cur, err := t.getUint64(k)
	if err != nil {
		return 0, err
	}
	if err := t.set(k, be64(cur+1)); err != nil {
		return 0, err
	}
	return cur, nil
}

// Sequence returns the counter value.
func (t *tx) Sequence(name string) (uint64, error) {
	return t.getUint64(key(prefixSeq, []byte(name)))
}

// Balance returns the free balance of account.
func (t *tx) Balance(account models.AccountID) (models.Amount, error) {
	raw, err := t.get(key(prefixBalance, account[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return models.Amount{}, nil
	}
	if err != nil {
		return models.Amount{}, err
	}
	return models.AmountFromBytes16(raw)
}

// SetBalance stores the balance, deleting the entry at zero.
func (t *tx) SetBalance(account models.AccountID, amount models.Amount) error {
	k := key(prefixBalance, account[:])
	if amount.IsZero() {
		if err := t.txn.Delete(k); err != nil {
			return fmt.Errorf("failed to delete balance: %w", err)
		}
		return nil
	}
	enc := amount.Bytes16()
	return t.set(k, enc[:])
}

// ListBalances returns every non-zero balance.
func (t *tx) ListBalances() (map[models.AccountID]models.Amount, error) {
	balances := make(map[models.AccountID]models.Amount)
	err := t.scan(prefixBalance, func(k, v []byte) error {
		var account models.AccountID
		copy(account[:], k[len(prefixBalance):])
		amount, err := models.AmountFromBytes16(v)
		if err != nil {
			return err
		}
		balances[account] = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// InsertCredential stores a credential under its username.
func (t *tx) InsertCredential(c *models.Credential) error {
	if c == nil || c.Username == "" {
		return storage.ErrInvalidInput
	}
	k := key(prefixCred, []byte(c.Username))
	found, err := t.exists(k)
	if err != nil {
		return err
	}
	if found {
		return storage.ErrDuplicateKey
	}
	return t.putJSON(k, c)
}

// GetCredential retrieves a credential by username.
func (t *tx) GetCredential(username string) (*models.Credential, error) {
	var c models.Credential
	if err := t.getJSON(key(prefixCred, []byte(username)), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Genesis returns the stored time of block 0.
func (t *tx) Genesis() (time.Time, error) {
	raw, err := t.get(keyGenesis)
	if err != nil {
		return time.Time{}, err
	}
	var at time.Time
	if err := at.UnmarshalText(raw); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode genesis: %w", err)
	}
	return at, nil
}

// SetGenesis stores the time of block 0 as RFC 3339 text.
func (t *tx) SetGenesis(at time.Time) error {
	raw, err := at.UTC().MarshalText()
	if err != nil {
		return fmt.Errorf("failed to encode genesis: %w", err)
	}
	return t.set(keyGenesis, raw)
}
