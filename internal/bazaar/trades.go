package bazaar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xtrntr/bazaar/internal/escrow"
	"github.com/xtrntr/bazaar/internal/events"
	"github.com/xtrntr/bazaar/internal/ledger"
	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/observability"
	"github.com/xtrntr/bazaar/internal/storage"
)

// EscrowHold is how many blocks must pass after initiation before a seller may
// reclaim escrow. One day at six seconds per block.
const EscrowHold models.BlockNumber = 14400

// TradeLedger runs the trade lifecycle
type TradeLedger struct {
	run    *runner
	ledger *ledger.Ledger
	escrow *escrow.Account
	events events.Publisher
}

// InitiateBuy opens a trade from buyer against the trader at seller.
func (l *TradeLedger) InitiateBuy(ctx context.Context, buyer models.AccountID, price, amount models.Amount, seller models.TraderIndex) (models.TradeIndex, error) {
	var (
		trade models.Trade
		block models.BlockNumber
	)
	fields := logrus.Fields{"caller": buyer, "seller": seller, "amount": amount}
	err := l.run.atomic(ctx, "initiate_buy", fields, func(tx storage.Tx, now models.BlockNumber) error {
		if _, err := tx.GetTraderByIndex(seller); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrUnknownSeller
			}
			return fmt.Errorf("failed to look up seller: %w", err)
		}

		next, err := tx.NextSequence(storage.SeqTrades)
		if err != nil {
			return fmt.Errorf("failed to allocate trade index: %w", err)
		}
		trade = models.Trade{
			ID:      models.TradeIndex(next),
			Price:   price,
			Amount:  amount,
			Buyer:   buyer,
			Seller:  seller,
			State:   models.TradeInitiated,
			Created: now,
		}
		if err := tx.InsertTrade(&trade); err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}

		open, err := tx.OpenTrades(seller)
		if err != nil {
			return fmt.Errorf("failed to read open trades: %w", err)
		}
		if err := tx.SetOpenTrades(seller, open+1); err != nil {
			return fmt.Errorf("failed to update open trades: %w", err)
		}
		block = now
		return nil
	})
	if err != nil {
		return 0, err
	}

	if l.events != nil {
		l.events.Publish(events.Event{
			Kind:  events.KindInitiatedBuy,
			Block: block,
			Data: &models.InitiatedBuy{
				Trade:  trade.ID,
				Buyer:  buyer,
				Seller: seller,
				Amount: amount,
			},
		})
	}
	return trade.ID, nil
}

// EscrowCoin moves the trade amount from the seller into escrow.
func (l *TradeLedger) EscrowCoin(ctx context.Context, caller models.AccountID, id models.TradeIndex) error {
	err := l.run.atomic(ctx, "escrow_coin", tradeFields(caller, id), func(tx storage.Tx, _ models.BlockNumber) error {
		idx, err := callerIndex(tx, caller)
		if err != nil {
			return err
		}
		return mutateTrade(tx, id, func(t *models.Trade) error {
			switch {
			case t.Seller != idx:
				return ErrNotSeller
			case t.State == models.TradeCancelled:
				return ErrTradeCancelled
			case t.Escrowed():
				return ErrTradeAlreadyEscrowed
			case t.Received():
				return ErrTradeAlreadyCompleted
			}
			if err := l.ledger.Transfer(tx, caller, l.escrow.Address(), t.Amount, ledger.AllowDeath); err != nil {
				return transferFailure(err)
			}
			t.State = models.TradeEscrowed
			return nil
		})
	})
	if err == nil {
		l.run.metrics.RecordEscrowTransfer(observability.DirectionIn)
	}
	return err
}

// CancelEscrow refunds the seller once the escrow hold has elapsed.
func (l *TradeLedger) CancelEscrow(ctx context.Context, caller models.AccountID, id models.TradeIndex) error {
	err := l.run.atomic(ctx, "cancel_escrow", tradeFields(caller, id), func(tx storage.Tx, now models.BlockNumber) error {
		idx, err := callerIndex(tx, caller)
		if err != nil {
			return err
		}
		var seller models.TraderIndex
		err = mutateTrade(tx, id, func(t *models.Trade) error {
			switch {
			case t.Seller != idx:
				return ErrNotSeller
			case t.State == models.TradeCancelled:
				return ErrTradeCancelled
			case !t.Escrowed():
				return ErrTradeNotEscrowed
			case t.Received():
				return ErrTradeAlreadyCompleted
			case elapsed(now, t.Created) <= EscrowHold:
				return ErrTradeLessThanOneDay
			}
			if err := l.ledger.Transfer(tx, l.escrow.Address(), caller, t.Amount, ledger.AllowDeath); err != nil {
				return transferFailure(err)
			}
			t.State = models.TradeCancelled
			seller = t.Seller
			return nil
		})
		if err != nil {
			return err
		}
		return closeOpenTrade(tx, seller)
	})
	if err == nil {
		l.run.metrics.RecordEscrowTransfer(observability.DirectionRefund)
	}
	return err
}

// ConfirmReceived releases escrow to the buyer and completes the trade.
func (l *TradeLedger) ConfirmReceived(ctx context.Context, caller models.AccountID, id models.TradeIndex) error {
	err := l.run.atomic(ctx, "confirm_received", tradeFields(caller, id), func(tx storage.Tx, _ models.BlockNumber) error {
		var seller models.TraderIndex
		err := mutateTrade(tx, id, func(t *models.Trade) error {
			switch {
			case t.Buyer != caller:
				return ErrNotBuyer
			case t.State == models.TradeCancelled:
				return ErrTradeCancelled
			case !t.Escrowed():
				return ErrTradeNotEscrowed
			case t.Received():
				return ErrTradeAlreadyCompleted
			}
			if err := l.ledger.Transfer(tx, l.escrow.Address(), caller, t.Amount, ledger.AllowDeath); err != nil {
				return transferFailure(err)
			}
			t.State = models.TradeCompleted
			seller = t.Seller
			return nil
		})
		if err != nil {
			return err
		}
		return closeOpenTrade(tx, seller)
	})
	if err == nil {
		l.run.metrics.RecordEscrowTransfer(observability.DirectionOut)
	}
	return err
}

// OpenDispute is not supported yet.
func (l *TradeLedger) OpenDispute(ctx context.Context, caller models.AccountID, id models.TradeIndex) error {
	l.run.metrics.ObserveOp("open_dispute", Code(ErrNotImplemented), time.Now())
	return fmt.Errorf("open dispute on trade %d: %w", id, ErrNotImplemented)
}

// CloseDispute is not supported yet. The portions are the buyer's and seller's
// share of the escrowed amount in percent.
func (l *TradeLedger) CloseDispute(ctx context.Context, caller models.AccountID, id models.TradeIndex, buyerPortion, sellerPortion uint8) error {
	l.run.metrics.ObserveOp("close_dispute", Code(ErrNotImplemented), time.Now())
	return fmt.Errorf("close dispute on trade %d: %w", id, ErrNotImplemented)
}

// Trade returns trade id.
func (l *TradeLedger) Trade(ctx context.Context, id models.TradeIndex) (*models.Trade, error) {
	var trade *models.Trade
	err := l.run.view(ctx, func(tx storage.Tx) error {
		var err error
		trade, err = tx.GetTrade(id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTradeNotFound
	}
	return trade, err
}

// TradesForBuyer returns the trades opened by buyer.
func (l *TradeLedger) TradesForBuyer(ctx context.Context, buyer models.AccountID) ([]*models.Trade, error) {
	return l.list(ctx, storage.TradeFilter{Buyer: &buyer})
}

// TradesForSeller returns the trades against the trader at seller.
func (l *TradeLedger) TradesForSeller(ctx context.Context, seller models.TraderIndex) ([]*models.Trade, error) {
	return l.list(ctx, storage.TradeFilter{Seller: &seller})
}

// TradesInState returns every trade currently in state.
func (l *TradeLedger) TradesInState(ctx context.Context, state models.TradeState) ([]*models.Trade, error) {
	return l.list(ctx, storage.TradeFilter{State: &state})
}

func (l *TradeLedger) list(ctx context.Context, f storage.TradeFilter) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := l.run.view(ctx, func(tx storage.Tx) error {
		var err error
		trades, err = tx.ListTrades(f)
		return err
	})
	return trades, err
}

// OpenTrades returns how many trades against seller are still open.
func (l *TradeLedger) OpenTrades(ctx context.Context, seller models.TraderIndex) (uint64, error) {
	var n uint64
	err := l.run.view(ctx, func(tx storage.Tx) error {
		var err error
		n, err = tx.OpenTrades(seller)
		return err
	})
	return n, err
}

// AuditReport compares escrowed trade amounts with the escrow balance
type AuditReport struct {
	Escrowed     models.Amount `json:"escrowed"`
	Balance      models.Amount `json:"balance"`
	EscrowedOpen int           `json:"escrowed_open"`
}

// Audit checks that the escrow account covers every trade still in escrow.
// It returns ErrEscrowShortfall together with the report when it does not.
func (l *TradeLedger) Audit(ctx context.Context) (*AuditReport, error) {
	var report AuditReport
	state := models.TradeEscrowed
	err := l.run.view(ctx, func(tx storage.Tx) error {
		trades, err := tx.ListTrades(storage.TradeFilter{State: &state})
		if err != nil {
			return err
		}
		for _, t := range trades {
			var overflow bool
			if report.Escrowed, overflow = report.Escrowed.Add(t.Amount); overflow {
				return ledger.ErrOverflow
			}
		}
		report.EscrowedOpen = len(trades)
		report.Balance, err = l.ledger.FreeBalance(tx, l.escrow.Address())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to audit escrow: %w", err)
	}
	if report.Escrowed.Cmp(report.Balance) > 0 {
		return &report, fmt.Errorf("%w: escrowed %s, balance %s", ErrEscrowShortfall, report.Escrowed, report.Balance)
	}
	return &report, nil
}

// callerIndex resolves the trader index of caller. An unregistered caller
// cannot be the seller of any trade.
func callerIndex(tx storage.Tx, caller models.AccountID) (models.TraderIndex, error) {
	p, err := tx.GetTrader(caller)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrNotSeller
		}
		return 0, fmt.Errorf("failed to look up caller: %w", err)
	}
	return p.Index, nil
}

func mutateTrade(tx storage.Tx, id models.TradeIndex, fn func(t *models.Trade) error) error {
	err := tx.MutateTrade(id, fn)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrTradeNotFound
	}
	return err
}

// closeOpenTrade decrements the open trade counter of seller, stopping at zero.
func closeOpenTrade(tx storage.Tx, seller models.TraderIndex) error {
	open, err := tx.OpenTrades(seller)
	if err != nil {
		return fmt.Errorf("failed to read open trades: %w", err)
	}
	if open == 0 {
		return nil
	}
	return tx.SetOpenTrades(seller, open-1)
}

func elapsed(now, since models.BlockNumber) models.BlockNumber {
	if now < since {
		return 0
	}
	return now - since
}

func tradeFields(caller models.AccountID, id models.TradeIndex) logrus.Fields {
	return logrus.Fields{"caller": caller, "trade_id": id}
}
