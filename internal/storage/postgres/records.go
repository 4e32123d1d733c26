package postgres

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/storage"
)

const traderColumns = "idx, account, name, headline, country, method, " +
	"ask_price::text, ask_limit::text, bid_price::text, bid_limit::text, created"

const tradeColumns = "id, price::text, amount::text, buyer, seller, state, created"

// scanTrader decodes one row selected with traderColumns.
func scanTrader(row pgx.Row) (*models.TraderProfile, error) {
	var (
		p                                      models.TraderProfile
		idx, created                           int64
		country                                int16
		account                                []byte
		askPrice, askLimit, bidPrice, bidLimit string
	)
	err := row.Scan(&idx, &account, &p.Name, &p.Headline, &country, &p.Method,
		&askPrice, &askLimit, &bidPrice, &bidLimit, &created)
	if err != nil {
		return nil, err
	}
	p.Index = models.TraderIndex(idx)
	p.Country = uint8(country)
	p.Created = models.BlockNumber(created)
	if err := decodeAccount(account, &p.Account); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst *models.Amount
		src string
	}{{&p.AskPrice, askPrice}, {&p.AskLimit, askLimit}, {&p.BidPrice, bidPrice}, {&p.BidLimit, bidLimit}} {
		if *f.dst, err = models.ParseAmount(f.src); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// scanTrade decodes one row selected with tradeColumns.
func scanTrade(row pgx.Row) (*models.Trade, error) {
	var (
		t                   models.Trade
		id, seller, created int64
		price, amount       string
		buyer               []byte
		state               string
	)
	if err := row.Scan(&id, &price, &amount, &buyer, &seller, &state, &created); err != nil {
		return nil, err
	}
	t.ID = models.TradeIndex(id)
	t.Seller = models.TraderIndex(seller)
	t.Created = models.BlockNumber(created)

	var err error
	if t.Price, err = models.ParseAmount(price); err != nil {
		return nil, err
	}
	if t.Amount, err = models.ParseAmount(amount); err != nil {
		return nil, err
	}
	if t.State, err = models.ParseTradeState(state); err != nil {
		return nil, err
	}
	if err := decodeAccount(buyer, &t.Buyer); err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeAccount(raw []byte, dst *models.AccountID) error {
	if len(raw) != len(dst) {
		return fmt.Errorf("account column has %d bytes", len(raw))
	}
	copy(dst[:], raw)
	return nil
}

// InsertTrader inserts a new trader profile
func (t *pgTx) InsertTrader(p *models.TraderProfile) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO traders (idx, account, name, headline, country, method,
			ask_price, ask_limit, bid_price, bid_limit, created)
		VALUES ($1, $2, $3, $4, $5, $6,
			$7::text::numeric, $8::text::numeric, $9::text::numeric, $10::text::numeric, $11)`,
		int64(p.Index), p.Account[:], nonNil(p.Name), nonNil(p.Headline), int16(p.Country), nonNil(p.Method),
		p.AskPrice.String(), p.AskLimit.String(), p.BidPrice.String(), p.BidLimit.String(), int64(p.Created))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert trader: %w", err)
	}
	return nil
}

// GetTrader retrieves a trader by account
func (t *pgTx) GetTrader(account models.AccountID) (*models.TraderProfile, error) {
	p, err := scanTrader(t.tx.QueryRow(t.ctx,
		"SELECT "+traderColumns+" FROM traders WHERE account = $1", account[:]))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trader: %w", err)
	}
	return p, nil
}

// GetTraderByIndex retrieves a trader by index
func (t *pgTx) GetTraderByIndex(idx models.TraderIndex) (*models.TraderProfile, error) {
	p, err := scanTrader(t.tx.QueryRow(t.ctx,
		"SELECT "+traderColumns+" FROM traders WHERE idx = $1", int64(idx)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trader: %w", err)
	}
	return p, nil
}

// MutateTrader locks the trader row, applies fn and writes the row back
func (t *pgTx) MutateTrader(account models.AccountID, fn func(p *models.TraderProfile) error) error {
	// Lock the row for update to prevent concurrent modifications
	p, err := scanTrader(t.tx.QueryRow(t.ctx,
		"SELECT "+traderColumns+" FROM traders WHERE account = $1 FOR UPDATE", account[:]))
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to get trader: %w", err)
	}

	if err := fn(p); err != nil {
		return err
	}
	if p.Account != account {
		return fmt.Errorf("trader account cannot change: %w", storage.ErrInvalidInput)
	}

	_, err = t.tx.Exec(t.ctx, `
		UPDATE traders SET name = $2, headline = $3, country = $4, method = $5,
			ask_price = $6::text::numeric, ask_limit = $7::text::numeric,
			bid_price = $8::text::numeric, bid_limit = $9::text::numeric
		WHERE account = $1`,
		account[:], nonNil(p.Name), nonNil(p.Headline), int16(p.Country), nonNil(p.Method),
		p.AskPrice.String(), p.AskLimit.String(), p.BidPrice.String(), p.BidLimit.String())
	if err != nil {
		return fmt.Errorf("failed to update trader: %w", err)
	}
	return nil
}

// ListTraders retrieves all traders ordered by index
func (t *pgTx) ListTraders() ([]*models.TraderProfile, error) {
	rows, err := t.tx.Query(t.ctx, "SELECT "+traderColumns+" FROM traders ORDER BY idx ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list traders: %w", err)
	}
	defer rows.Close()

	var traders []*models.TraderProfile
	for rows.Next() {
		p, err := scanTrader(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trader: %w", err)
		}
		traders = append(traders, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return traders, nil
}

// InsertTrade inserts a new trade
func (t *pgTx) InsertTrade(trade *models.Trade) error {
	if trade == nil {
		return storage.ErrInvalidInput
	}
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO trades (id, price, amount, buyer, seller, state, created)
		VALUES ($1, $2::text::numeric, $3::text::numeric, $4, $5, $6, $7)`,
		int64(trade.ID), trade.Price.String(), trade.Amount.String(), trade.Buyer[:],
		int64(trade.Seller), trade.State.String(), int64(trade.Created))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// GetTrade retrieves a trade by id
func (t *pgTx) GetTrade(id models.TradeIndex) (*models.Trade, error) {
	trade, err := scanTrade(t.tx.QueryRow(t.ctx,
		"SELECT "+tradeColumns+" FROM trades WHERE id = $1", int64(id)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// MutateTrade locks the trade row, applies fn and writes the row back
func (t *pgTx) MutateTrade(id models.TradeIndex, fn func(t *models.Trade) error) error {
	trade, err := scanTrade(t.tx.QueryRow(t.ctx,
		"SELECT "+tradeColumns+" FROM trades WHERE id = $1 FOR UPDATE", int64(id)))
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to get trade: %w", err)
	}

	if err := fn(trade); err != nil {
		return err
	}
	if trade.ID != id {
		return fmt.Errorf("trade id cannot change: %w", storage.ErrInvalidInput)
	}

	_, err = t.tx.Exec(t.ctx, `
		UPDATE trades SET price = $2::text::numeric, amount = $3::text::numeric,
			buyer = $4, seller = $5, state = $6, created = $7
		WHERE id = $1`,
		int64(id), trade.Price.String(), trade.Amount.String(), trade.Buyer[:],
		int64(trade.Seller), trade.State.String(), int64(trade.Created))
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}
	return nil
}

// ListTrades retrieves the trades matching f ordered by id
func (t *pgTx) ListTrades(f storage.TradeFilter) ([]*models.Trade, error) {
	var (
		where []string
		args  []any
	)
	if f.Buyer != nil {
		args = append(args, f.Buyer[:])
		where = append(where, fmt.Sprintf("buyer = $%d", len(args)))
	}
	if f.Seller != nil {
		args = append(args, int64(*f.Seller))
		where = append(where, fmt.Sprintf("seller = $%d", len(args)))
	}
	if f.State != nil {
		args = append(args, f.State.String())
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}

	query := "SELECT " + tradeColumns + " FROM trades"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := t.tx.Query(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trades, nil
}

// OpenTrades returns the seller's open trade counter
func (t *pgTx) OpenTrades(seller models.TraderIndex) (uint64, error) {
	var n int64
	err := t.tx.QueryRow(t.ctx, "SELECT n FROM open_trades WHERE seller = $1", int64(seller)).Scan(&n)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get open trades: %w", err)
	}
	return uint64(n), nil
}

// SetOpenTrades overwrites the seller's open trade counter
func (t *pgTx) SetOpenTrades(seller models.TraderIndex, n uint64) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO open_trades (seller, n) VALUES ($1, $2)
		ON CONFLICT (seller) DO UPDATE SET n = EXCLUDED.n`,
		int64(seller), int64(n))
	if err != nil {
		return fmt.Errorf("failed to set open trades: %w", err)
	}
	return nil
}

// NextSequence returns the counter value and increments it
func (t *pgTx) NextSequence(name string) (uint64, error) {
	var next int64
	err := t.tx.QueryRow(t.ctx, `
		INSERT INTO sequences (name, next) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET next = sequences.next + 1
		RETURNING next`, name).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return uint64(next - 1), nil
}

// Sequence returns the counter value
func (t *pgTx) Sequence(name string) (uint64, error) {
	var next int64
	err := t.tx.QueryRow(t.ctx, "SELECT next FROM sequences WHERE name = $1", name).Scan(&next)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get sequence %s: %w", name, err)
	}
	return uint64(next), nil
}

// Balance returns the free balance of account
func (t *pgTx) Balance(account models.AccountID) (models.Amount, error) {
	var free string
	err := t.tx.QueryRow(t.ctx, "SELECT free::text FROM balances WHERE account = $1", account[:]).Scan(&free)
	if err != nil {
		if isNotFoundError(err) {
			return models.Amount{}, nil
		}
		return models.Amount{}, fmt.Errorf("failed to get balance: %w", err)
	}
	return models.ParseAmount(free)
}

// SetBalance overwrites the free balance, deleting the row at zero
func (t *pgTx) SetBalance(account models.AccountID, amount models.Amount) error {
	var err error
	if amount.IsZero() {
		_, err = t.tx.Exec(t.ctx, "DELETE FROM balances WHERE account = $1", account[:])
	} else {
		_, err = t.tx.Exec(t.ctx, `
			INSERT INTO balances (account, free) VALUES ($1, $2::text::numeric)
			ON CONFLICT (account) DO UPDATE SET free = EXCLUDED.free`,
			account[:], amount.String())
	}
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// ListBalances returns every non-zero balance
func (t *pgTx) ListBalances() (map[models.AccountID]models.Amount, error) {
	rows, err := t.tx.Query(t.ctx, "SELECT account, free::text FROM balances")
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[models.AccountID]models.Amount)
	for rows.Next() {
		var (
			raw     []byte
			free    string
			account models.AccountID
		)
		if err := rows.Scan(&raw, &free); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if err := decodeAccount(raw, &account); err != nil {
			return nil, err
		}
		amount, err := models.ParseAmount(free)
		if err != nil {
			return nil, err
		}
		balances[account] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return balances, nil
}

// InsertCredential inserts a new credential
func (t *pgTx) InsertCredential(c *models.Credential) error {
	if c == nil || c.Username == "" {
		return storage.ErrInvalidInput
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := t.tx.Exec(t.ctx,
		"INSERT INTO credentials (username, password_hash, account, created_at) VALUES ($1, $2, $3, $4)",
		c.Username, c.PasswordHash, c.Account[:], createdAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

// GetCredential retrieves a credential by username
func (t *pgTx) GetCredential(username string) (*models.Credential, error) {
	var (
		c   models.Credential
		raw []byte
	)
	err := t.tx.QueryRow(t.ctx,
		"SELECT username, password_hash, account, created_at FROM credentials WHERE username = $1",
		username).Scan(&c.Username, &c.PasswordHash, &raw, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if err := decodeAccount(raw, &c.Account); err != nil {
		return nil, err
	}
	return &c, nil
}

// nonNil keeps NOT NULL BYTEA columns from receiving a nil slice.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Genesis returns the stored time of block 0
func (t *pgTx) Genesis() (time.Time, error) {
	var at time.Time
	err := t.tx.QueryRow(t.ctx, "SELECT at FROM genesis WHERE id").Scan(&at)
	if err != nil {
		if isNotFoundError(err) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to get genesis: %w", err)
	}
	return at.UTC(), nil
}

// SetGenesis records the time of block 0
func (t *pgTx) SetGenesis(at time.Time) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO genesis (id, at) VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET at = EXCLUDED.at`, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to set genesis: %w", err)
	}
	return nil
}
