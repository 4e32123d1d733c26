package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		{name: "Zero", input: "0"},
		{name: "Small", input: "50"},
		{name: "Max128", input: "340282366920938463463374607431768211455"},
		{name: "Overflow128", input: "340282366920938463463374607431768211456", expectError: true},
		{name: "Negative", input: "-1", expectError: true},
		{name: "NotANumber", input: "fifty", expectError: true},
		{name: "Empty", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAmount(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, a.String())
		})
	}
}

func TestAmount_Arithmetic(t *testing.T) {
	max := MustParseAmount("340282366920938463463374607431768211455")

	sum, overflow := NewAmount(40).Add(NewAmount(2))
	assert.False(t, overflow)
	assert.Equal(t, NewAmount(42), sum)

	_, overflow = max.Add(NewAmount(1))
	assert.True(t, overflow)

	diff, underflow := NewAmount(50).Sub(NewAmount(50))
	assert.False(t, underflow)
	assert.True(t, diff.IsZero())

	_, underflow = NewAmount(1).Sub(NewAmount(2))
	assert.True(t, underflow)

	assert.Equal(t, -1, NewAmount(1).Cmp(NewAmount(2)))
	assert.Equal(t, 0, max.Cmp(max))
}

func TestAmount_Bytes16RoundTrip(t *testing.T) {
	a := MustParseAmount("340282366920938463463374607431768211455")
	b := a.Bytes16()
	back, err := AmountFromBytes16(b[:])
	require.NoError(t, err)
	assert.Equal(t, a, back)

	_, err = AmountFromBytes16([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestAccountID_Text(t *testing.T) {
	id, err := NewAccountID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id.String(), "0x"))

	parsed, err := ParseAccountID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseAccountID("0x1234")
	assert.Error(t, err)
	_, err = ParseAccountID("0x" + strings.Repeat("zz", 32))
	assert.Error(t, err)
}

func TestTrade_Flags(t *testing.T) {
	tests := []struct {
		state    TradeState
		escrowed bool
		received bool
	}{
		{TradeInitiated, false, false},
		{TradeEscrowed, true, false},
		{TradeCompleted, true, true},
		{TradeCancelled, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			trade := Trade{State: tt.state}
			assert.True(t, trade.Initiated())
			assert.Equal(t, tt.escrowed, trade.Escrowed())
			assert.Equal(t, tt.received, trade.Received())
		})
	}
}

func TestTrade_JSON(t *testing.T) {
	buyer, err := NewAccountID()
	require.NoError(t, err)
	trade := Trade{
		ID:      7,
		Price:   NewAmount(100),
		Amount:  NewAmount(50),
		Buyer:   buyer,
		Seller:  3,
		State:   TradeEscrowed,
		Created: 12,
	}

	data, err := json.Marshal(trade)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"escrowed"`)
	assert.Contains(t, string(data), `"amount":"50"`)

	var decoded Trade
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, trade, decoded)
}
