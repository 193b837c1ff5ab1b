package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/repository"
	"chargeshare-backend/internal/repository/postgres"
)

var rentalCols = []string{
	"id", "rental_code", "user_id", "origin_kiosk_id", "origin_slot_id", "return_kiosk_id", "return_slot_id",
	"device_id", "package_id", "payment_model", "package_price", "package_minutes", "status", "payment_status",
	"started_at", "due_at", "ended_at", "amount_paid", "amount_due", "overdue_amount", "is_returned_on_time",
	"timely_return_bonus_awarded", "extension_count", "metadata", "created_at", "updated_at",
}

func newMock(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return postgres.NewStore(db, 2*time.Second), mock
}

func TestRentalRepository_Create(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		deviceID := int64(7)
		rental := &domain.Rental{
			Code:          "AB12CD34",
			UserID:        3,
			OriginKioskID: 1,
			OriginSlotID:  2,
			DeviceID:      &deviceID,
			PackageID:     4,
			PaymentModel:  domain.PaymentModelPrepaid,
			PackagePrice:  decimal.NewFromInt(10),
			Status:        domain.RentalStatusPending,
			PaymentStatus: domain.PaymentStatusNone,
			DueAt:         time.Now().Add(time.Hour),
		}

		mock.ExpectExec("INSERT INTO rentals").WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Rentals().Create(ctx, rental)
		assert.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, rental.ID)
		assert.False(t, rental.CreatedAt.IsZero())
	})

	t.Run("Live Rental Exists", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO rentals").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "rentals_one_live_per_user"})

		err := store.Rentals().Create(ctx, &domain.Rental{UserID: 3, Status: domain.RentalStatusPending})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Code Collision", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO rentals").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "rentals_rental_code_key"})

		err := store.Rentals().Create(ctx, &domain.Rental{UserID: 4, Status: domain.RentalStatusPending})
		assert.ErrorIs(t, err, repository.ErrDuplicateRentalCode)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_GetByID(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(rentalCols).
			AddRow(id.String(), "AB12CD34", 3, 1, 2, nil, nil, 7, 4, "PREPAID", "10.00", 60, "ACTIVE", "PAID",
				now, now.Add(time.Hour), nil, "10.00", "0", "0", false,
				false, 0, []byte(`{"return_source":"kiosk"}`), now, now)
		mock.ExpectQuery("SELECT (.+) FROM rentals WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(rows)

		rental, err := store.Rentals().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, rental.ID)
		assert.Equal(t, domain.RentalStatusActive, rental.Status)
		assert.True(t, decimal.NewFromInt(10).Equal(rental.PackagePrice))
		require.NotNil(t, rental.DeviceID)
		assert.Equal(t, int64(7), *rental.DeviceID)
		assert.Nil(t, rental.ReturnKioskID)
		assert.Equal(t, "kiosk", rental.Metadata[domain.MetaReturnSource])
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM rentals WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(rentalCols))

		_, err := store.Rentals().GetByID(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_ListDueBefore(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	now := time.Now()
	last := uuid.New()

	t.Run("First page", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM rentals WHERE status = \\$1 AND due_at < \\$2 AND payment_model = \\$3 ORDER BY due_at, id LIMIT \\$4").
			WithArgs(domain.RentalStatusOverdue, now, domain.PaymentModelPrepaid, 2).
			WillReturnRows(sqlmock.NewRows(rentalCols))

		got, err := store.Rentals().ListDueBefore(ctx, repository.DueQuery{
			Status: domain.RentalStatusOverdue, Before: now, PaymentModel: domain.PaymentModelPrepaid, Limit: 2,
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("After cursor", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM rentals WHERE status = \\$1 AND due_at < \\$2 AND \\(due_at, id\\) > \\(\\$3, \\$4\\) ORDER BY due_at, id LIMIT \\$5").
			WithArgs(domain.RentalStatusActive, now, now.Add(-time.Hour), last, 2).
			WillReturnRows(sqlmock.NewRows(rentalCols))

		_, err := store.Rentals().ListDueBefore(ctx, repository.DueQuery{
			Status: domain.RentalStatusActive, Before: now, After: repository.Cursor{At: now.Add(-time.Hour), ID: last}, Limit: 2,
		})
		require.NoError(t, err)
	})

	t.Run("Refunds after cursor", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM rentals\\s+WHERE payment_status = \\$1 AND \\(created_at, id\\) > \\(\\$2, \\$3\\) ORDER BY created_at, id LIMIT \\$4").
			WithArgs(domain.PaymentStatusRefundPending, now, last, 5).
			WillReturnRows(sqlmock.NewRows(rentalCols))

		_, err := store.Rentals().ListByPaymentStatus(ctx, domain.PaymentStatusRefundPending, repository.Cursor{At: now, ID: last}, 5)
		require.NoError(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepository_LockBestCandidate(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("FOR UPDATE OF s, d SKIP LOCKED").
			WithArgs(int64(1), 20).
			WillReturnRows(sqlmock.NewRows([]string{"id", "slot_number", "id", "battery_level"}).AddRow(11, 3, 21, 95))

		c, err := store.Slots().LockBestCandidate(ctx, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(11), c.SlotID)
		assert.Equal(t, int64(21), c.DeviceID)
		assert.Equal(t, 95, c.BatteryLevel)
	})

	t.Run("None Available", func(t *testing.T) {
		mock.ExpectQuery("FOR UPDATE OF s, d SKIP LOCKED").
			WithArgs(int64(1), 20).
			WillReturnRows(sqlmock.NewRows([]string{"id", "slot_number", "id", "battery_level"}))

		_, err := store.Slots().LockBestCandidate(ctx, 1, 20)
		assert.ErrorIs(t, err, domain.ErrResourceUnavailable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("SET LOCAL lock_timeout = '2000ms'").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE slots SET").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
			return tx.Slots().Update(ctx, &domain.Slot{ID: 5, Status: domain.SlotStatusAvailable})
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback On Error", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Lock Timeout Maps To Conflict", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM rentals WHERE id = \\$1 FOR UPDATE").
			WillReturnError(&pq.Error{Code: "55P03"})
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
			_, err := tx.Rentals().GetForUpdate(ctx, uuid.New())
			return err
		})
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		assert.True(t, domain.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Serialization Failure On Commit", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})

		err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error { return nil })
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	})
}

func TestAccountRepository(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	t.Run("Missing Row Is Zero Balance", func(t *testing.T) {
		mock.ExpectQuery("SELECT points, wallet FROM accounts").
			WithArgs(int64(9)).
			WillReturnRows(sqlmock.NewRows([]string{"points", "wallet"}))

		acct, err := store.Accounts().GetForUpdate(ctx, 9)
		require.NoError(t, err)
		assert.True(t, acct.Points.IsZero())
		assert.True(t, acct.Wallet.IsZero())
	})

	t.Run("Adjust Upserts", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO accounts (.+) ON CONFLICT").
			WithArgs(int64(9), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Accounts().Adjust(ctx, 9, decimal.NewFromInt(-2), decimal.NewFromInt(-3))
		assert.NoError(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_Create(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO notifications").
		WithArgs(int64(3), domain.EventRentalStarted, "Rental started", "Enjoy", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	n := &domain.Notification{UserID: 3, Kind: domain.EventRentalStarted, Title: "Rental started", Message: "Enjoy"}
	err := store.Notifications().Create(ctx, n)
	assert.NoError(t, err)
	assert.Equal(t, int64(12), n.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_List(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	cols := []string{"id", "user_id", "kind", "title", "message", "is_read", "attributes", "created_at"}
	now := time.Now()

	t.Run("Unread page", func(t *testing.T) {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM \\(SELECT (.+) FROM notifications WHERE user_id = \\$1 AND NOT is_read\\) as sub").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectQuery("SELECT (.+) FROM notifications WHERE user_id = \\$1 AND NOT is_read ORDER BY created_at DESC, id DESC LIMIT \\$2 OFFSET \\$3").
			WithArgs(int64(3), int32(2), int32(2)).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(9, 3, "LATE_FEE_CHARGED", "Late fee charged", "3.50", false, []byte(`{"rental_code":"AB12"}`), now))

		notes, total, err := store.Notifications().List(ctx, 3, true, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, int32(4), total)
		require.Len(t, notes, 1)
		assert.Equal(t, int64(9), notes[0].ID)
		assert.Equal(t, "AB12", notes[0].Attributes["rental_code"])
	})

	t.Run("All notifications", func(t *testing.T) {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM \\(SELECT (.+) FROM notifications WHERE user_id = \\$1\\) as sub").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("SELECT (.+) FROM notifications WHERE user_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT \\$2 OFFSET \\$3").
			WithArgs(int64(3), int32(20), int32(0)).
			WillReturnRows(sqlmock.NewRows(cols))

		notes, total, err := store.Notifications().List(ctx, 3, false, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int32(0), total)
		assert.Empty(t, notes)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
