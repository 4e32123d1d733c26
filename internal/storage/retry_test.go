package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xtrntr/bazaar/internal/models"
)

func TestRetry(t *testing.T) {
	other := errors.New("boom")

	tests := []struct {
		name          string
		results       []error
		expectErr     error
		expectAttempt int
	}{
		{name: "FirstTry", results: []error{nil}, expectAttempt: 1},
		{name: "ConflictThenOK", results: []error{ErrConflict, nil}, expectAttempt: 2},
		{name: "OtherErrorNotRetried", results: []error{other}, expectErr: other, expectAttempt: 1},
		{name: "GivesUp", results: []error{ErrConflict, ErrConflict, ErrConflict, nil}, expectErr: ErrConflict, expectAttempt: MaxAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Retry(context.Background(), func() error {
				res := tt.results[attempts]
				attempts++
				return res
			})
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectAttempt, attempts)
		})
	}
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestTradeFilter_Match(t *testing.T) {
	buyer := models.AccountID{1}
	seller := models.TraderIndex(2)
	escrowed := models.TradeEscrowed

	trade := &models.Trade{Buyer: buyer, Seller: seller, State: escrowed}

	assert.True(t, TradeFilter{}.Match(trade))
	assert.True(t, TradeFilter{Buyer: &buyer}.Match(trade))
	assert.True(t, TradeFilter{Seller: &seller, State: &escrowed}.Match(trade))

	otherBuyer := models.AccountID{9}
	assert.False(t, TradeFilter{Buyer: &otherBuyer}.Match(trade))
	otherSeller := models.TraderIndex(9)
	assert.False(t, TradeFilter{Seller: &otherSeller}.Match(trade))
	completed := models.TradeCompleted
	assert.False(t, TradeFilter{State: &completed}.Match(trade))
}
