package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/repository"
)

type paymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.RentalPayment) error {
	p.CreatedAt = time.Now()
	query := `INSERT INTO rental_payments (rental_id, transaction_id, kind, amount, points_amount, wallet_amount, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, p.RentalID, p.TransactionID, p.Kind, p.Amount, p.Points, p.Wallet, p.CreatedAt).Scan(&p.ID)
	return mapError(err)
}

func (r *paymentRepository) ListByRental(ctx context.Context, rentalID uuid.UUID) ([]domain.RentalPayment, error) {
	query := `SELECT id, rental_id, transaction_id, kind, amount, points_amount, wallet_amount, created_at
	          FROM rental_payments WHERE rental_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, rentalID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var payments []domain.RentalPayment
	for rows.Next() {
		var p domain.RentalPayment
		if err := rows.Scan(&p.ID, &p.RentalID, &p.TransactionID, &p.Kind, &p.Amount, &p.Points, &p.Wallet, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
