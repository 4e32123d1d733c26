package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/bazaar/internal/api"
	"github.com/xtrntr/bazaar/internal/auth"
	"github.com/xtrntr/bazaar/internal/bazaar"
	"github.com/xtrntr/bazaar/internal/blocks"
	"github.com/xtrntr/bazaar/internal/events"
	"github.com/xtrntr/bazaar/internal/logger"
	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/storage/badgerstore"
)

type server struct {
	url  string
	bz   *bazaar.Bazaar
	mock *clock.Mock
}

func newServer(t *testing.T) *server {
	t.Helper()
	store, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mock := clock.NewMock()
	hub := events.NewHub(4)
	log := logger.Discard()
	bz, err := bazaar.New(bazaar.Options{
		Store:  store,
		Clock:  blocks.NewWallClock(mock, mock.Now(), blocks.DefaultInterval),
		Events: hub,
		Logger: log,
	})
	require.NoError(t, err)

	h := api.NewHandler(bz, auth.NewAuthService(store, []byte("0123456789abcdef"), time.Hour), hub, nil, log)
	srv := httptest.NewServer(api.NewRouter(h, api.RouterOptions{}))
	t.Cleanup(srv.Close)
	return &server{url: srv.URL, bz: bz, mock: mock}
}

func (s *server) login(t *testing.T, name string, funds uint64) (*Client, models.AccountID) {
	t.Helper()
	ctx := context.Background()
	c := New(s.url, Options{Timeout: 5 * time.Second})
	cred, err := c.Register(ctx, name, "password123")
	require.NoError(t, err)
	_, err = c.Login(ctx, name, "password123")
	require.NoError(t, err)
	require.NoError(t, s.bz.Deposit(ctx, cred.Account, models.NewAmount(funds)))
	return c, cred.Account
}

func TestClient_TradeLifecycle(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	seller, sellerAccount := s.login(t, "alice", 1000)
	buyer, buyerAccount := s.login(t, "bob", 0)

	idx, err := seller.CreateTrader(ctx, Profile{
		Name:     "alice",
		Country:  44,
		Method:   "bank transfer",
		AskPrice: models.NewAmount(100),
		AskLimit: models.NewAmount(500),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TraderIndex(0), idx)

	profile, err := buyer.Trader(ctx, sellerAccount)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Name)

	id, err := buyer.InitiateBuy(ctx, models.NewAmount(100), models.NewAmount(50), idx)
	require.NoError(t, err)

	err = buyer.EscrowCoin(ctx, id)
	assert.ErrorIs(t, err, bazaar.ErrNotSeller)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	require.NoError(t, seller.EscrowCoin(ctx, id))
	assert.ErrorIs(t, seller.EscrowCoin(ctx, id), bazaar.ErrTradeAlreadyEscrowed)
	assert.ErrorIs(t, seller.CancelEscrow(ctx, id), bazaar.ErrTradeLessThanOneDay)

	esc, err := buyer.Escrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.NewAmount(50), esc.Free)

	report, err := buyer.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EscrowedOpen)

	require.NoError(t, buyer.ConfirmReceived(ctx, id))
	assert.ErrorIs(t, buyer.ConfirmReceived(ctx, id), bazaar.ErrTradeAlreadyCompleted)

	trade, err := buyer.Trade(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TradeCompleted, trade.State)
	assert.Equal(t, buyerAccount, trade.Buyer)
	assert.True(t, trade.Initiated)
	assert.True(t, trade.Escrowed)
	assert.True(t, trade.Received)

	bal, err := buyer.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.NewAmount(50), bal.Free)

	trades, err := seller.Trades(ctx, "seller", "completed")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	trades, err = buyer.Trades(ctx, "", "escrowed")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestClient_Profiles(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	c, account := s.login(t, "alice", 0)

	err := c.UpdateProfile(ctx, "x", "y")
	assert.ErrorIs(t, err, bazaar.ErrNotAuthorisedAsTrader)

	_, err = c.CreateTrader(ctx, Profile{Name: "alice", Country: 1, BidPrice: models.NewAmount(9), BidLimit: models.NewAmount(3)})
	require.NoError(t, err)
	_, err = c.CreateTrader(ctx, Profile{Name: "alice"})
	assert.ErrorIs(t, err, bazaar.ErrAlreadyTrader)

	require.NoError(t, c.UpdateProfile(ctx, "hello", "cash"))
	require.NoError(t, c.UpdateLimits(ctx, bazaar.Limits{BidPrice: models.NewAmount(10), BidLimit: models.NewAmount(4)}))

	p, err := c.Trader(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Headline)
	assert.Equal(t, models.NewAmount(10), p.BidPrice)

	traders, err := c.Traders(ctx)
	require.NoError(t, err)
	assert.Len(t, traders, 1)

	country := uint8(1)
	board, err := c.Quotes(ctx, &country, "")
	require.NoError(t, err)
	assert.Empty(t, board.Asks)
	require.Len(t, board.Bids, 1)
	assert.Equal(t, models.NewAmount(10), board.Bids[0].Price)
}

func TestClient_Disputes(t *testing.T) {
	s := newServer(t)
	c, _ := s.login(t, "bob", 0)

	assert.ErrorIs(t, c.OpenDispute(context.Background(), 0), bazaar.ErrNotImplemented)
	assert.ErrorIs(t, c.CloseDispute(context.Background(), 0, 60, 40), bazaar.ErrNotImplemented)
}

func TestClient_Errors(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	anon := New(s.url, Options{})
	_, err := anon.Balance(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = anon.Login(ctx, "nobody", "password123")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "InvalidCredentials", apiErr.Code)

	down := New("http://127.0.0.1:1", Options{Timeout: time.Second})
	_, err = down.Escrow(ctx)
	assert.Error(t, err)
}
