package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

var rentalColumnList = []string{
	"id", "rental_code", "user_id", "origin_kiosk_id", "origin_slot_id", "return_kiosk_id", "return_slot_id",
	"device_id", "package_id", "payment_model", "package_price", "package_minutes", "status", "payment_status",
	"started_at", "due_at", "ended_at", "amount_paid", "amount_due", "overdue_amount", "is_returned_on_time",
	"timely_return_bonus_awarded", "extension_count", "metadata", "created_at", "updated_at",
}

var (
	rentalColumns   = strings.Join(rentalColumnList, ", ")
	rentalColumnsR  = "r." + strings.Join(rentalColumnList, ", r.")
	liveStatusesSQL = "('PENDING', 'ACTIVE', 'OVERDUE')"
)

type rentalRepository struct {
	db DBTX
}

func NewRentalRepository(db DBTX) repository.RentalRepository {
	return &rentalRepository{db: db}
}

func scanRental(row scanner) (*domain.Rental, error) {
	rt := &domain.Rental{}
	var meta []byte
	err := row.Scan(&rt.ID, &rt.Code, &rt.UserID, &rt.OriginKioskID, &rt.OriginSlotID, &rt.ReturnKioskID, &rt.ReturnSlotID,
		&rt.DeviceID, &rt.PackageID, &rt.PaymentModel, &rt.PackagePrice, &rt.PackageMinutes, &rt.Status, &rt.PaymentStatus,
		&rt.StartedAt, &rt.DueAt, &rt.EndedAt, &rt.AmountPaid, &rt.AmountDue, &rt.OverdueAmount, &rt.ReturnedOnTime,
		&rt.BonusAwarded, &rt.ExtensionCount, &meta, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rt.Metadata); err != nil {
			return nil, fmt.Errorf("decode rental metadata: %w", err)
		}
	}
	return rt, nil
}

func encodeMeta(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (r *rentalRepository) Create(ctx context.Context, rt *domain.Rental) error {
	logger.EnterMethod("rentalRepository.Create", "userID", rt.UserID, "kioskID", rt.OriginKioskID)

	meta, err := encodeMeta(rt.Metadata)
	if err != nil {
		return err
	}
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	now := time.Now()
	rt.CreatedAt, rt.UpdatedAt = now, now

	query := `INSERT INTO rentals (` + rentalColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`
	logger.DatabaseCall("INSERT", "rentals", "rentalID", rt.ID)
	_, err = r.db.ExecContext(ctx, query, rt.ID, rt.Code, rt.UserID, rt.OriginKioskID, rt.OriginSlotID, rt.ReturnKioskID, rt.ReturnSlotID,
		rt.DeviceID, rt.PackageID, rt.PaymentModel, rt.PackagePrice, rt.PackageMinutes, rt.Status, rt.PaymentStatus,
		rt.StartedAt, rt.DueAt, rt.EndedAt, rt.AmountPaid, rt.AmountDue, rt.OverdueAmount, rt.ReturnedOnTime,
		rt.BonusAwarded, rt.ExtensionCount, meta, rt.CreatedAt, rt.UpdatedAt)
	logger.DatabaseResult("INSERT", 1, err, "rentalID", rt.ID)
	if err != nil {
		logger.ExitMethodWithError("rentalRepository.Create", err, "rentalID", rt.ID)
		return mapError(err)
	}
	logger.ExitMethod("rentalRepository.Create", "rentalID", rt.ID)
	return nil
}

func (r *rentalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1`
	rt, err := scanRental(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "rental %s not found", id)
	}
	return rt, nil
}

func (r *rentalRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1 FOR UPDATE`
	rt, err := scanRental(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "rental %s not found", id)
	}
	return rt, nil
}

func (r *rentalRepository) Update(ctx context.Context, rt *domain.Rental) error {
	meta, err := encodeMeta(rt.Metadata)
	if err != nil {
		return err
	}
	rt.UpdatedAt = time.Now()
	query := `UPDATE rentals SET return_kiosk_id=$1, return_slot_id=$2, device_id=$3, status=$4, payment_status=$5,
	          started_at=$6, due_at=$7, ended_at=$8, amount_paid=$9, amount_due=$10, overdue_amount=$11,
	          is_returned_on_time=$12, timely_return_bonus_awarded=$13, extension_count=$14, metadata=$15, updated_at=$16
	          WHERE id=$17`
	res, err := r.db.ExecContext(ctx, query, rt.ReturnKioskID, rt.ReturnSlotID, rt.DeviceID, rt.Status, rt.PaymentStatus,
		rt.StartedAt, rt.DueAt, rt.EndedAt, rt.AmountPaid, rt.AmountDue, rt.OverdueAmount,
		rt.ReturnedOnTime, rt.BonusAwarded, rt.ExtensionCount, meta, rt.UpdatedAt, rt.ID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewNotFoundError("rental %s not found", rt.ID)
	}
	return nil
}

func (r *rentalRepository) GetLiveByUser(ctx context.Context, userID int64) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE user_id = $1 AND status IN ` + liveStatusesSQL + ` LIMIT 1`
	rt, err := scanRental(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, notFound(err, "no live rental for user %d", userID)
	}
	return rt, nil
}

func (r *rentalRepository) GetLiveByDevice(ctx context.Context, deviceID int64) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE device_id = $1 AND status IN ` + liveStatusesSQL + ` LIMIT 1`
	rt, err := scanRental(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		return nil, notFound(err, "no live rental for device %d", deviceID)
	}
	return rt, nil
}

func (r *rentalRepository) ListByUser(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error) {
	offset := (page - 1) * pageSize
	sql := `SELECT ` + rentalColumns + ` FROM rentals WHERE user_id = $1`

	args := []interface{}{userID}
	argIdx := 2
	if status != "" {
		sql += " AND status = $2"
		args = append(args, status)
		argIdx++
	}

	var count int32
	countSql := "SELECT count(*) FROM (" + sql + ") as sub"
	if err := r.db.QueryRowContext(ctx, countSql, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	sql += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, pageSize, offset)

	rentals, err := r.query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	return rentals, count, nil
}

func (r *rentalRepository) ListDueBefore(ctx context.Context, q repository.DueQuery) ([]domain.Rental, error) {
	sql := `SELECT ` + rentalColumns + ` FROM rentals WHERE status = $1 AND due_at < $2`

	args := []interface{}{q.Status, q.Before}
	argIdx := 3
	if q.PaymentModel != "" {
		sql += fmt.Sprintf(" AND payment_model = $%d", argIdx)
		args = append(args, q.PaymentModel)
		argIdx++
	}
	if !q.After.IsZero() {
		sql += fmt.Sprintf(" AND (due_at, id) > ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, q.After.At, q.After.ID)
		argIdx += 2
	}

	sql += fmt.Sprintf(" ORDER BY due_at, id LIMIT $%d", argIdx)
	args = append(args, q.Limit)
	return r.query(ctx, sql, args...)
}

func (r *rentalRepository) ListCreatedBefore(ctx context.Context, status domain.RentalStatus, before time.Time, limit int) ([]domain.Rental, error) {
	return r.query(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		status, before, limit)
}

func (r *rentalRepository) ListByPaymentStatus(ctx context.Context, status domain.PaymentStatus, after repository.Cursor, limit int) ([]domain.Rental, error) {
	if after.IsZero() {
		return r.query(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE payment_status = $1 ORDER BY created_at, id LIMIT $2`,
			status, limit)
	}
	return r.query(ctx, `SELECT `+rentalColumns+` FROM rentals
	                     WHERE payment_status = $1 AND (created_at, id) > ($2, $3) ORDER BY created_at, id LIMIT $4`,
		status, after.At, after.ID, limit)
}

func (r *rentalRepository) ListDueBetween(ctx context.Context, from, to time.Time, limit int) ([]domain.Rental, error) {
	return r.query(ctx, `SELECT `+rentalColumns+` FROM rentals
	                     WHERE status = 'ACTIVE' AND due_at >= $1 AND due_at < $2 ORDER BY due_at LIMIT $3`,
		from, to, limit)
}

func (r *rentalRepository) ListDockedAtOrigin(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Rental, error) {
	query := `SELECT ` + rentalColumnsR + ` FROM rentals r
	          JOIN devices d ON d.id = r.device_id
	          WHERE r.status IN ` + liveStatusesSQL + ` AND r.started_at < $1
	            AND d.status = 'RENTED'
	            AND d.current_kiosk_id = r.origin_kiosk_id AND d.current_slot_id = r.origin_slot_id
	          ORDER BY r.created_at LIMIT $2`
	return r.query(ctx, query, startedBefore, limit)
}

func (r *rentalRepository) query(ctx context.Context, query string, args ...any) ([]domain.Rental, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var rentals []domain.Rental
	for rows.Next() {
		rt, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, *rt)
	}
	return rentals, rows.Err()
}
