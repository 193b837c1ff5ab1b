package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

type accountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) repository.AccountRepository {
	return &accountRepository{db: db}
}

// GetForUpdate locks the user's balance row. A user without a row has zero
// balances.
func (r *accountRepository) GetForUpdate(ctx context.Context, userID int64) (*domain.Account, error) {
	a := &domain.Account{UserID: userID}
	query := `SELECT points, wallet FROM accounts WHERE user_id = $1 FOR UPDATE`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&a.Points, &a.Wallet)
	if errors.Is(err, sql.ErrNoRows) {
		a.Points, a.Wallet = decimal.Zero, decimal.Zero
		return a, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r *accountRepository) Adjust(ctx context.Context, userID int64, points, wallet decimal.Decimal) error {
	logger.DatabaseCall("UPSERT", "accounts", "userID", userID, "points", points.String(), "wallet", wallet.String())
	query := `INSERT INTO accounts (user_id, points, wallet, updated_at) VALUES ($1, $2, $3, $4)
	          ON CONFLICT (user_id) DO UPDATE
	          SET points = accounts.points + EXCLUDED.points,
	              wallet = accounts.wallet + EXCLUDED.wallet,
	              updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query, userID, points, wallet, time.Now())
	logger.DatabaseResult("UPSERT", 1, err, "userID", userID)
	return mapError(err)
}

func (r *accountRepository) CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.CreatedAt = time.Now()
	query := `INSERT INTO ledger_transactions (id, user_id, type, kind, amount, points_amount, wallet_amount, refunded_amount,
	          rental_id, parent_id, description, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query, tx.ID, tx.UserID, tx.Type, tx.Kind, tx.Amount, tx.Points, tx.Wallet, tx.RefundedAmount,
		tx.RentalID, tx.ParentID, tx.Description, tx.CreatedAt)
	return mapError(err)
}

func (r *accountRepository) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.LedgerTransaction, error) {
	tx := &domain.LedgerTransaction{}
	query := `SELECT id, user_id, type, kind, amount, points_amount, wallet_amount, refunded_amount, rental_id, parent_id,
	          COALESCE(description, ''), created_at
	          FROM ledger_transactions WHERE id = $1 FOR UPDATE`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Kind, &tx.Amount, &tx.Points, &tx.Wallet,
		&tx.RefundedAmount, &tx.RentalID, &tx.ParentID, &tx.Description, &tx.CreatedAt)
	if err != nil {
		return nil, notFound(err, "transaction %s not found", id)
	}
	return tx, nil
}

func (r *accountRepository) AddRefunded(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	query := `UPDATE ledger_transactions SET refunded_amount = refunded_amount + $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, amount, id)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFoundError("transaction %s not found", id)
	}
	return nil
}
