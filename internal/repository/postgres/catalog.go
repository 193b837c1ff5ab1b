package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/repository"
)

type kioskRepository struct {
	db DBTX
}

func NewKioskRepository(db DBTX) repository.KioskRepository {
	return &kioskRepository{db: db}
}

func (r *kioskRepository) GetByID(ctx context.Context, id int64) (*domain.Kiosk, error) {
	k := &domain.Kiosk{}
	query := `SELECT id, serial_number, name, status, created_at FROM kiosks WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&k.ID, &k.Serial, &k.Name, &k.Status, &k.CreatedAt)
	if err != nil {
		return nil, notFound(err, "kiosk %d not found", id)
	}
	return k, nil
}

func (r *kioskRepository) GetBySerial(ctx context.Context, serial string) (*domain.Kiosk, error) {
	k := &domain.Kiosk{}
	query := `SELECT id, serial_number, name, status, created_at FROM kiosks WHERE serial_number = $1`
	err := r.db.QueryRowContext(ctx, query, serial).Scan(&k.ID, &k.Serial, &k.Name, &k.Status, &k.CreatedAt)
	if err != nil {
		return nil, notFound(err, "kiosk %s not found", serial)
	}
	return k, nil
}

type packageRepository struct {
	db DBTX
}

func NewPackageRepository(db DBTX) repository.PackageRepository {
	return &packageRepository{db: db}
}

func (r *packageRepository) GetByID(ctx context.Context, id int64) (*domain.RentalPackage, error) {
	p := &domain.RentalPackage{}
	query := `SELECT id, name, duration_minutes, price, payment_model, is_active, created_at FROM rental_packages WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.DurationMinutes, &p.Price, &p.PaymentModel, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "package %d not found", id)
	}
	return p, nil
}

func (r *packageRepository) ListActive(ctx context.Context) ([]domain.RentalPackage, error) {
	query := `SELECT id, name, duration_minutes, price, payment_model, is_active, created_at
	          FROM rental_packages WHERE is_active = TRUE ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pkgs []domain.RentalPackage
	for rows.Next() {
		var p domain.RentalPackage
		if err := rows.Scan(&p.ID, &p.Name, &p.DurationMinutes, &p.Price, &p.PaymentModel, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, rows.Err()
}

type feeConfigRepository struct {
	db DBTX
}

func NewFeeConfigRepository(db DBTX) repository.FeeConfigRepository {
	return &feeConfigRepository{db: db}
}

func (r *feeConfigRepository) GetActive(ctx context.Context) (*domain.FeeConfiguration, error) {
	c := &domain.FeeConfiguration{}
	query := `SELECT id, name, fee_type, multiplier, flat_rate_per_hour, grace_period_minutes, max_daily_rate, is_active, updated_at
	          FROM fee_configurations WHERE is_active = TRUE ORDER BY updated_at DESC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&c.ID, &c.Name, &c.FeeType, &c.Multiplier, &c.FlatRatePerHour,
		&c.GracePeriodMinutes, &c.MaxDailyRate, &c.IsActive, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "no active fee configuration")
	}
	return c, nil
}

type appConfigRepository struct {
	db DBTX
}

func NewAppConfigRepository(db DBTX) repository.AppConfigRepository {
	return &appConfigRepository{db: db}
}

func (r *appConfigRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NewNotFoundError("config key %s not found", key)
	}
	return value, err
}

func (r *appConfigRepository) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO app_config (key, value, updated_at) VALUES ($1, $2, $3)
	          ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query, key, value, time.Now())
	return err
}
