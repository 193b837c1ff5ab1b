package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"

	_ "github.com/lib/pq"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every repository can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ repository.Store = (*Store)(nil)

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	repos
}

// NewStore wraps db. A positive lockTimeout bounds how long a transaction
// waits on a row lock before failing with a concurrency conflict.
func NewStore(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout, repos: repos{q: db}}
}

func (s *Store) FeeConfigs() repository.FeeConfigRepository {
	return NewFeeConfigRepository(s.db)
}

func (s *Store) AppConfig() repository.AppConfigRepository {
	return NewAppConfigRepository(s.db)
}

func (s *Store) Notifications() repository.NotificationRepository {
	return NewNotificationRepository(s.db)
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken through
// the ...ForUpdate methods serialize conflicting writers.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				logger.Error("Transaction rollback failed", "error", rbErr)
			}
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return mapError(err)
		}
	}

	if err = fn(ctx, repos{q: tx}); err != nil {
		return mapError(err)
	}
	if err = tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

type repos struct {
	q DBTX
}

func (r repos) Rentals() repository.RentalRepository       { return NewRentalRepository(r.q) }
func (r repos) Extensions() repository.ExtensionRepository { return NewExtensionRepository(r.q) }
func (r repos) Kiosks() repository.KioskRepository         { return NewKioskRepository(r.q) }
func (r repos) Slots() repository.SlotRepository           { return NewSlotRepository(r.q) }
func (r repos) Devices() repository.DeviceRepository       { return NewDeviceRepository(r.q) }
func (r repos) Packages() repository.PackageRepository     { return NewPackageRepository(r.q) }
func (r repos) Payments() repository.PaymentRepository     { return NewPaymentRepository(r.q) }
func (r repos) Accounts() repository.AccountRepository     { return NewAccountRepository(r.q) }

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
