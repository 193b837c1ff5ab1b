// Package ledger is the built-in LedgerGateway: a points account and a wallet
// per user, debited and credited under a row lock on the account. It runs on
// whichever repository.Store it is given, so the same code backs both the
// postgres deployment and the in-memory demo mode.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/pricing"
	"chargeshare-backend/internal/repository"
)

type Gateway struct {
	store repository.Store
}

func NewGateway(store repository.Store) *Gateway {
	return &Gateway{store: store}
}

// Settle debits req.Amount from the user's accounts, draining req.Sources in
// order. Nothing is debited when the balances cannot cover the full amount.
func (g *Gateway) Settle(ctx context.Context, req domain.SettleRequest) (*domain.SettleResult, error) {
	logger.ExternalServiceCall("ledger", "Settle", "userID", req.UserID, "amount", req.Amount.String(), "kind", req.Kind)
	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError("settle amount must be positive, got %s", req.Amount)
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = domain.DefaultPaymentSources
	}

	var result *domain.SettleResult
	err := g.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		acct, err := tx.Accounts().GetForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}

		split := domain.Breakdown{Points: decimal.Zero, Wallet: decimal.Zero}
		remaining := req.Amount
		for _, src := range sources {
			if !remaining.IsPositive() {
				break
			}
			switch src {
			case domain.PaymentSourcePoints:
				take := decimal.Min(remaining, decimal.Max(acct.Points, decimal.Zero))
				split.Points = split.Points.Add(take)
				remaining = remaining.Sub(take)
			case domain.PaymentSourceWallet:
				take := decimal.Min(remaining, decimal.Max(acct.Wallet, decimal.Zero))
				split.Wallet = split.Wallet.Add(take)
				remaining = remaining.Sub(take)
			default:
				return domain.NewValidationError("unknown payment source %q", src)
			}
		}
		if remaining.IsPositive() {
			return domain.NewInsufficientFundsError(remaining)
		}

		entry := &domain.LedgerTransaction{
			UserID:         req.UserID,
			Type:           domain.TransactionTypeDebit,
			Kind:           req.Kind,
			Amount:         req.Amount,
			Points:         split.Points,
			Wallet:         split.Wallet,
			RefundedAmount: decimal.Zero,
			Description:    req.Description,
		}
		if req.RentalID != uuid.Nil {
			id := req.RentalID
			entry.RentalID = &id
		}
		if err := tx.Accounts().CreateTransaction(ctx, entry); err != nil {
			return err
		}
		if err := tx.Accounts().Adjust(ctx, req.UserID, split.Points.Neg(), split.Wallet.Neg()); err != nil {
			return err
		}
		result = &domain.SettleResult{TransactionID: entry.ID.String(), Breakdown: split}
		return nil
	})
	logger.ExternalServiceResult("ledger", "Settle", err, "userID", req.UserID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Refund credits up to amount of an earlier debit back to the sources that
// funded it, in proportion. Refunds are capped at what remains unrefunded,
// so repeating a refund that already went through is a no-op.
func (g *Gateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	logger.ExternalServiceCall("ledger", "Refund", "transactionID", transactionID, "amount", amount.String())
	id, err := uuid.Parse(transactionID)
	if err != nil {
		return domain.NewValidationError("invalid transaction id %q", transactionID)
	}

	err = g.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		orig, err := tx.Accounts().GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if orig.Type != domain.TransactionTypeDebit {
			return domain.NewValidationError("transaction %s is not a debit", id)
		}
		refundable := orig.Amount.Sub(orig.RefundedAmount)
		if amount.GreaterThan(refundable) {
			amount = refundable
		}
		if !amount.IsPositive() {
			logger.Warn("Refund skipped, nothing left to refund", "transactionID", transactionID)
			return nil
		}

		split := pricing.Prorate(amount, domain.Breakdown{Points: orig.Points, Wallet: orig.Wallet})
		parent := orig.ID
		entry := &domain.LedgerTransaction{
			UserID:         orig.UserID,
			Type:           domain.TransactionTypeRefund,
			Kind:           domain.PaymentKindRefund,
			Amount:         amount,
			Points:         split.Points,
			Wallet:         split.Wallet,
			RefundedAmount: decimal.Zero,
			RentalID:       orig.RentalID,
			ParentID:       &parent,
			Description:    fmt.Sprintf("refund of %s", orig.ID),
		}
		if err := tx.Accounts().CreateTransaction(ctx, entry); err != nil {
			return err
		}
		if err := tx.Accounts().AddRefunded(ctx, orig.ID, amount); err != nil {
			return err
		}
		return tx.Accounts().Adjust(ctx, orig.UserID, split.Points, split.Wallet)
	})
	logger.ExternalServiceResult("ledger", "Refund", err, "transactionID", transactionID)
	return err
}

// Award credits bonus points and returns the ledger transaction id.
func (g *Gateway) Award(ctx context.Context, userID int64, points decimal.Decimal, reference string) (string, error) {
	if !points.IsPositive() {
		return "", domain.NewValidationError("award must be positive, got %s", points)
	}
	var txID string
	err := g.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		entry := &domain.LedgerTransaction{
			UserID:         userID,
			Type:           domain.TransactionTypeAward,
			Kind:           domain.PaymentKindBonus,
			Amount:         points,
			Points:         points,
			Wallet:         decimal.Zero,
			RefundedAmount: decimal.Zero,
			Description:    reference,
		}
		if err := tx.Accounts().CreateTransaction(ctx, entry); err != nil {
			return err
		}
		txID = entry.ID.String()
		return tx.Accounts().Adjust(ctx, userID, points, decimal.Zero)
	})
	logger.ExternalServiceResult("ledger", "Award", err, "userID", userID, "points", points.String())
	return txID, err
}
