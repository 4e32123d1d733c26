package models

import "fmt"

// TradeState is the position of a trade in its lifecycle.
type TradeState uint8

const (
	// TradeInitiated: created by the buyer, not yet funded.
	TradeInitiated TradeState = iota
	// TradeEscrowed: seller funds held by the escrow account.
	TradeEscrowed
	// TradeCompleted: buyer confirmed receipt, escrow released. Terminal.
	TradeCompleted
	// TradeCancelled: escrow refunded to the seller after the hold. Terminal.
	TradeCancelled
)

var tradeStateNames = map[TradeState]string{
	TradeInitiated: "initiated",
	TradeEscrowed:  "escrowed",
	TradeCompleted: "completed",
	TradeCancelled: "cancelled",
}

func (s TradeState) String() string {
	if name, ok := tradeStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TradeState(%d)", uint8(s))
}

// Terminal reports whether no further transition is allowed.
func (s TradeState) Terminal() bool {
	return s == TradeCompleted || s == TradeCancelled
}

// MarshalText encodes the state by name.
func (s TradeState) MarshalText() ([]byte, error) {
	name, ok := tradeStateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown trade state %d", uint8(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a state name.
func (s *TradeState) UnmarshalText(b []byte) error {
	st, err := ParseTradeState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseTradeState maps a state name back to its value.
func ParseTradeState(name string) (TradeState, error) {
	for st, n := range tradeStateNames {
		if n == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown trade state %q", name)
}
