package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/storage"
)

var (
	sharedOnce sync.Once
	sharedDB   *DB
	sharedErr  error
)

// setupTestDB starts one PostgreSQL container for the package, applies the
// migrations and truncates every table. Skips when Docker is unavailable.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	sharedOnce.Do(func() {
		ctx := context.Background()
		container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
			tcpostgres.WithDatabase("bazaar"),
			tcpostgres.WithUsername("bazaar"),
			tcpostgres.WithPassword("bazaar"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			sharedErr = err
			return
		}
		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			sharedErr = err
			return
		}
		sharedDB, sharedErr = NewDB(ctx, dsn)
		if sharedErr == nil {
			sharedErr = sharedDB.Migrate(ctx)
		}
	})
	require.NoError(t, sharedErr, "failed to start postgres")

	_, err := sharedDB.Pool.Exec(context.Background(),
		"TRUNCATE TABLE sequences, traders, trades, open_trades, balances, credentials, genesis")
	require.NoError(t, err, "failed to truncate tables")
	return sharedDB
}

func TestDB_MigrateIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestDB_Traders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := models.AccountID{0xa1}

	profile := &models.TraderProfile{
		Index:    0,
		Name:     []byte("alice"),
		Headline: []byte("fast"),
		Country:  44,
		Method:   []byte("sepa"),
		AskPrice: models.MustParseAmount("340282366920938463463374607431768211455"),
		AskLimit: models.NewAmount(10),
		BidPrice: models.NewAmount(99),
		BidLimit: models.NewAmount(5),
		Account:  alice,
		Created:  3,
	}
	require.NoError(t, db.Atomic(ctx, func(tx storage.Tx) error {
		return tx.InsertTrader(profile)
	}))

	tests := []struct {
		name    string
		profile *models.TraderProfile
	}{
		{name: "DuplicateAccount", profile: &models.TraderProfile{Index: 1, Account: alice}},
		{name: "DuplicateIndex", profile: &models.TraderProfile{Index: 0, Account: models.AccountID{0xcc}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.Atomic(ctx, func(tx storage.Tx) error {
				return tx.InsertTrader(tt.profile)
			})
			assert.ErrorIs(t, err, storage.ErrDuplicateKey)
		})
	}

	require.NoError(t, db.Atomic(ctx, func(tx storage.Tx) error {
		return tx.MutateTrader(alice, func(p *models.TraderProfile) error {
			p.Headline = []byte("faster")
			return nil
		})
	}))

	require.NoError(t, db.View(ctx, func(tx storage.Tx) error {
		got, err := tx.GetTrader(alice)
		require.NoError(t, err)
		assert.Equal(t, "faster", string(got.Headline))
		assert.Equal(t, profile.AskPrice, got.AskPrice)
		assert.Equal(t, uint8(44), got.Country)

		byIdx, err := tx.GetTraderByIndex(0)
		require.NoError(t, err)
		assert.Equal(t, alice, byIdx.Account)

		_, err = tx.GetTrader(models.AccountID{0xee})
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))
}

func TestDB_TradesAndRollback(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	buyer := models.AccountID{0xb1}
	boom := errors.New("boom")

	require.NoError(t, db.Atomic(ctx, func(tx storage.Tx) error {
		for i := 0; i < 2; i++ {
			id, err := tx.NextSequence(storage.SeqTrades)
			if err != nil {
				return err
			}
			err = tx.InsertTrade(&models.Trade{
				ID:     models.TradeIndex(id),
				Price:  models.NewAmount(100),
				Amount: models.NewAmount(50),
				Buyer:  buyer,
				Seller: 0,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	err := db.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.SetBalance(buyer, models.NewAmount(1)); err != nil {
			return err
		}
		return tx.MutateTrade(1, func(tr *models.Trade) error {
			tr.State = models.TradeEscrowed
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, db.View(ctx, func(tx storage.Tx) error {
		tr, err := tx.GetTrade(1)
		require.NoError(t, err)
		assert.Equal(t, models.TradeInitiated, tr.State)

		bal, err := tx.Balance(buyer)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())

		next, err := tx.Sequence(storage.SeqTrades)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), next)

		trades, err := tx.ListTrades(storage.TradeFilter{Buyer: &buyer})
		require.NoError(t, err)
		assert.Len(t, trades, 2)
		return nil
	}))
}

func TestDB_BalancesAndCredentials(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := models.AccountID{0xa1}

	require.NoError(t, db.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.SetBalance(alice, models.NewAmount(70)); err != nil {
			return err
		}
		if err := tx.SetOpenTrades(0, 3); err != nil {
			return err
		}
		return tx.InsertCredential(&models.Credential{Username: "alice", PasswordHash: "hash", Account: alice})
	}))

	err := db.Atomic(ctx, func(tx storage.Tx) error {
		return tx.InsertCredential(&models.Credential{Username: "alice", PasswordHash: "x", Account: models.AccountID{0x02}})
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	require.NoError(t, db.View(ctx, func(tx storage.Tx) error {
		bal, err := tx.Balance(alice)
		require.NoError(t, err)
		assert.Equal(t, models.NewAmount(70), bal)

		open, err := tx.OpenTrades(0)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), open)

		cred, err := tx.GetCredential("alice")
		require.NoError(t, err)
		assert.Equal(t, alice, cred.Account)
		return nil
	}))
}

func TestDB_Genesis(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	first := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)

	err := db.View(ctx, func(tx storage.Tx) error {
		_, err := tx.Genesis()
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := storage.EnsureGenesis(ctx, db, first)
	require.NoError(t, err)
	assert.True(t, first.Equal(got))

	got, err = storage.EnsureGenesis(ctx, db, first.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, first.Equal(got), "stored genesis wins over a later proposal")
}
