package bazaar

import (
	"errors"
	"fmt"
)

// Error kinds returned by bazaar operations. Match them with errors.Is.
var (
	ErrAlreadyTrader         = errors.New("account is already a trader")
	ErrNotAuthorisedAsTrader = errors.New("account is not authorised as a trader")
	ErrNotBuyer              = errors.New("caller is not the buyer of this trade")
	ErrNotSeller             = errors.New("caller is not the seller of this trade")
	ErrTradeAlreadyCompleted = errors.New("trade already completed")
	ErrTradeAlreadyEscrowed  = errors.New("trade already escrowed")
	ErrTradeNotEscrowed      = errors.New("trade not escrowed")
	ErrTradeLessThanOneDay   = errors.New("escrow hold has not elapsed")
	ErrTransferFailure       = errors.New("transfer failed")

	ErrTradeNotFound   = errors.New("trade not found")
	ErrTradeCancelled  = errors.New("trade cancelled")
	ErrUnknownSeller   = errors.New("seller is not a registered trader")
	ErrNotTrader       = errors.New("account is not a trader")
	ErrNotImplemented  = errors.New("not implemented")
	ErrEscrowShortfall = errors.New("escrow balance below open escrowed amount")
)

var kinds = []struct {
	err  error
	code string
}{
	{ErrAlreadyTrader, "AlreadyTrader"},
	{ErrNotAuthorisedAsTrader, "NotAuthorisedAsTrader"},
	{ErrNotBuyer, "NotBuyer"},
	{ErrNotSeller, "NotSeller"},
	{ErrTradeAlreadyCompleted, "TradeAlreadyCompleted"},
	{ErrTradeAlreadyEscrowed, "TradeAlreadyEscrowed"},
	{ErrTradeNotEscrowed, "TradeNotEscrowed"},
	{ErrTradeLessThanOneDay, "TradeLessThanOneDay"},
	{ErrTransferFailure, "TransferFailure"},
	{ErrTradeNotFound, "TradeNotFound"},
	{ErrTradeCancelled, "TradeCancelled"},
	{ErrUnknownSeller, "UnknownSeller"},
	{ErrNotTrader, "NotTrader"},
	{ErrNotImplemented, "NotImplemented"},
	{ErrEscrowShortfall, "EscrowShortfall"},
}

// Code returns the kind name of err, "ok" for nil and "Internal" for anything unknown.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "Internal"
}

// transferFailure wraps a ledger error so both the kind and the cause match.
func transferFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrTransferFailure, err)
}

// ErrorForCode maps a kind name back to its sentinel, nil when unknown.
func ErrorForCode(code string) error {
	for _, k := range kinds {
		if k.code == code {
			return k.err
		}
	}
	return nil
}
