package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentSource string

const (
	PaymentSourcePoints PaymentSource = "POINTS"
	PaymentSourceWallet PaymentSource = "WALLET"
)

// DefaultPaymentSources drains points before the wallet.
var DefaultPaymentSources = []PaymentSource{PaymentSourcePoints, PaymentSourceWallet}

// Breakdown splits an amount across the sources that funded it.
type Breakdown struct {
	Points decimal.Decimal `json:"points"`
	Wallet decimal.Decimal `json:"wallet"`
}

func (b Breakdown) Total() decimal.Decimal {
	return b.Points.Add(b.Wallet)
}

type SettleRequest struct {
	UserID      int64
	Amount      decimal.Decimal
	Sources     []PaymentSource
	RentalID    uuid.UUID
	Kind        PaymentKind
	Description string
}

type SettleResult struct {
	TransactionID string
	Breakdown     Breakdown
}

type PaymentKind string

const (
	PaymentKindRental    PaymentKind = "PAYMENT"
	PaymentKindExtension PaymentKind = "EXTENSION"
	PaymentKindLateFee   PaymentKind = "LATE_FEE"
	PaymentKindUsage     PaymentKind = "USAGE"
	PaymentKindPenalty   PaymentKind = "PENALTY"
	PaymentKindRefund    PaymentKind = "REFUND"
	PaymentKindBonus     PaymentKind = "BONUS"
)

// Refundable reports whether payments of this kind are returned on cancel.
func (k PaymentKind) Refundable() bool {
	return k == PaymentKindRental || k == PaymentKindExtension
}

// RentalPayment links a ledger transaction to the rental it paid for.
type RentalPayment struct {
	ID            int64           `json:"id"`
	RentalID      uuid.UUID       `json:"rental_id"`
	TransactionID string          `json:"transaction_id"`
	Kind          PaymentKind     `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Points        decimal.Decimal `json:"points_amount"`
	Wallet        decimal.Decimal `json:"wallet_amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "DEBIT"
	TransactionTypeRefund TransactionType = "REFUND"
	TransactionTypeAward  TransactionType = "AWARD"
)

// LedgerTransaction is a movement on a user's points and wallet accounts.
type LedgerTransaction struct {
	ID             uuid.UUID       `json:"id"`
	UserID         int64           `json:"user_id"`
	Type           TransactionType `json:"type"`
	Kind           PaymentKind     `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Points         decimal.Decimal `json:"points_amount"`
	Wallet         decimal.Decimal `json:"wallet_amount"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	RentalID       *uuid.UUID      `json:"rental_id,omitempty"`
	ParentID       *uuid.UUID      `json:"parent_id,omitempty"`
	Description    string          `json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Account holds a user's spendable balances.
type Account struct {
	UserID int64           `json:"user_id"`
	Points decimal.Decimal `json:"points"`
	Wallet decimal.Decimal `json:"wallet"`
}
