package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/repository"
)

type extensionRepository struct {
	db DBTX
}

func NewExtensionRepository(db DBTX) repository.ExtensionRepository {
	return &extensionRepository{db: db}
}

func (r *extensionRepository) Create(ctx context.Context, ext *domain.Extension) error {
	ext.CreatedAt = time.Now()
	query := `INSERT INTO rental_extensions (rental_id, package_id, extended_minutes, cost, transaction_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, ext.RentalID, ext.PackageID, ext.ExtendedMinutes, ext.Cost, ext.TransactionID, ext.CreatedAt).Scan(&ext.ID)
	return mapError(err)
}

func (r *extensionRepository) ListByRental(ctx context.Context, rentalID uuid.UUID) ([]domain.Extension, error) {
	query := `SELECT id, rental_id, package_id, extended_minutes, cost, transaction_id, created_at
	          FROM rental_extensions WHERE rental_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, rentalID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var exts []domain.Extension
	for rows.Next() {
		var e domain.Extension
		if err := rows.Scan(&e.ID, &e.RentalID, &e.PackageID, &e.ExtendedMinutes, &e.Cost, &e.TransactionID, &e.CreatedAt); err != nil {
			return nil, err
		}
		exts = append(exts, e)
	}
	return exts, rows.Err()
}

func (r *extensionRepository) CountByRental(ctx context.Context, rentalID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM rental_extensions WHERE rental_id = $1`, rentalID).Scan(&n)
	return n, mapError(err)
}
