package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/bazaar/internal/bazaar"
	"github.com/xtrntr/bazaar/internal/config"
	"github.com/xtrntr/bazaar/internal/logger"
	"github.com/xtrntr/bazaar/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Store:              config.StoreBadger,
		BadgerPath:         filepath.Join(t.TempDir(), "db"),
		JWTSecret:          "0123456789abcdef",
		TokenTTL:           time.Hour,
		BlockInterval:      6 * time.Second,
		ExistentialDeposit: "0",
		Metrics:            true,
	}
}

func TestNew_Badger(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := New(ctx, cfg, logger.Discard(), nil)
	require.NoError(t, err)

	cred, err := a.Auth.Register(ctx, "alice", "password123")
	require.NoError(t, err)
	require.NoError(t, a.Bazaar.Deposit(ctx, cred.Account, models.NewAmount(10)))
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "second close is a no-op")

	// state survives a restart
	a, err = New(ctx, cfg, logger.Discard(), nil)
	require.NoError(t, err)
	defer a.Close()
	bal, err := a.Bazaar.Balance(ctx, cred.Account)
	require.NoError(t, err)
	assert.Equal(t, models.NewAmount(10), bal)
	assert.NotNil(t, a.Handler())
}

func TestNew_BadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = "sqlite"
	_, err := New(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}

type failingCloser struct{ err error }

func (f failingCloser) Close() error { return f.err }

func TestClose_CollectsErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	a := &App{closers: []io.Closer{failingCloser{first}, failingCloser{nil}, failingCloser{second}}}

	err := a.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestNew_BlockHeightSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	mock := clock.NewMock()
	block := cfg.BlockInterval

	a, err := newApp(ctx, cfg, mock, logger.Discard(), nil)
	require.NoError(t, err)
	mock.Add(20000 * block)

	seller, err := a.Auth.Register(ctx, "seller", "password123")
	require.NoError(t, err)
	buyer, err := a.Auth.Register(ctx, "buyer", "password123")
	require.NoError(t, err)
	require.NoError(t, a.Bazaar.Deposit(ctx, seller.Account, models.NewAmount(100)))
	idx, err := a.Bazaar.Register(ctx, seller.Account, bazaar.ProfileFields{Name: []byte("seller")})
	require.NoError(t, err)
	id, err := a.Bazaar.InitiateBuy(ctx, buyer.Account, models.NewAmount(1), models.NewAmount(50), idx)
	require.NoError(t, err)
	require.NoError(t, a.Bazaar.EscrowCoin(ctx, seller.Account, id))
	require.Equal(t, models.BlockNumber(20000), a.Bazaar.CurrentBlock())
	require.NoError(t, a.Close())

	a, err = newApp(ctx, cfg, mock, logger.Discard(), nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, models.BlockNumber(20000), a.Bazaar.CurrentBlock(), "height continues after restart")

	mock.Add(14400 * block)
	assert.ErrorIs(t, a.Bazaar.CancelEscrow(ctx, seller.Account, id), bazaar.ErrTradeLessThanOneDay)

	mock.Add(block)
	require.NoError(t, a.Bazaar.CancelEscrow(ctx, seller.Account, id))
	trade, err := a.Bazaar.Trade(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TradeCancelled, trade.State)
	assert.Equal(t, models.BlockNumber(20000), trade.Created)
}

func TestNew_Genesis(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		first     string
		second    string
		expectErr bool
	}{
		{name: "StoredWhenUnset", first: "", second: ""},
		{name: "ConfiguredTwice", first: "2024-01-01T00:00:00Z", second: "2024-01-01T00:00:00Z"},
		{name: "UnsetAfterConfigured", first: "2024-01-01T00:00:00Z", second: ""},
		{name: "Mismatch", first: "", second: "2024-01-01T00:00:00Z", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			mock := clock.NewMock()
			mock.Add(time.Hour)

			cfg.Genesis = tt.first
			a, err := newApp(ctx, cfg, mock, logger.Discard(), nil)
			require.NoError(t, err)
			first := a.Bazaar.CurrentBlock()
			require.NoError(t, a.Close())

			cfg.Genesis = tt.second
			a, err = newApp(ctx, cfg, mock, logger.Discard(), nil)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer a.Close()
			assert.Equal(t, first, a.Bazaar.CurrentBlock())
		})
	}
}
