package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

const slotColumns = `id, kiosk_id, slot_number, status, battery_level, current_rental_id, updated_at`

type slotRepository struct {
	db DBTX
}

func NewSlotRepository(db DBTX) repository.SlotRepository {
	return &slotRepository{db: db}
}

func scanSlot(row scanner) (*domain.Slot, error) {
	s := &domain.Slot{}
	if err := row.Scan(&s.ID, &s.KioskID, &s.SlotNumber, &s.Status, &s.BatteryLevel, &s.CurrentRentalID, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *slotRepository) GetByID(ctx context.Context, id int64) (*domain.Slot, error) {
	s, err := scanSlot(r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "slot %d not found", id)
	}
	return s, nil
}

func (r *slotRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Slot, error) {
	s, err := scanSlot(r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "slot %d not found", id)
	}
	return s, nil
}

func (r *slotRepository) GetByNumberForUpdate(ctx context.Context, kioskID int64, slotNumber int) (*domain.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE kiosk_id = $1 AND slot_number = $2 FOR UPDATE`
	s, err := scanSlot(r.db.QueryRowContext(ctx, query, kioskID, slotNumber))
	if err != nil {
		return nil, notFound(err, "slot %d at kiosk %d not found", slotNumber, kioskID)
	}
	return s, nil
}

// LockBestCandidate locks the slot and its device together. SKIP LOCKED makes
// concurrent reservations at the same kiosk fan out over distinct slots
// instead of queueing behind one another.
func (r *slotRepository) LockBestCandidate(ctx context.Context, kioskID int64, minBattery int) (*domain.SlotCandidate, error) {
	logger.DatabaseCall("SELECT FOR UPDATE SKIP LOCKED", "slots", "kioskID", kioskID, "minBattery", minBattery)
	query := `SELECT s.id, s.slot_number, d.id, d.battery_level
	          FROM slots s
	          JOIN devices d ON d.current_slot_id = s.id
	          WHERE s.kiosk_id = $1 AND s.status = 'AVAILABLE'
	            AND d.status = 'AVAILABLE' AND d.battery_level >= $2
	          ORDER BY d.battery_level DESC, s.slot_number ASC
	          LIMIT 1
	          FOR UPDATE OF s, d SKIP LOCKED`
	c := &domain.SlotCandidate{}
	err := r.db.QueryRowContext(ctx, query, kioskID, minBattery).Scan(&c.SlotID, &c.SlotNumber, &c.DeviceID, &c.BatteryLevel)
	logger.DatabaseResult("SELECT FOR UPDATE SKIP LOCKED", 1, err, "kioskID", kioskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewResourceUnavailableError("no charged power bank available at kiosk %d", kioskID)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (r *slotRepository) Update(ctx context.Context, s *domain.Slot) error {
	s.UpdatedAt = time.Now()
	query := `UPDATE slots SET status=$1, battery_level=$2, current_rental_id=$3, updated_at=$4 WHERE id=$5`
	res, err := r.db.ExecContext(ctx, query, s.Status, s.BatteryLevel, s.CurrentRentalID, s.UpdatedAt, s.ID)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFoundError("slot %d not found", s.ID)
	}
	return nil
}

func (r *slotRepository) ListOccupiedWithoutLiveRental(ctx context.Context) ([]domain.Slot, error) {
	query := `SELECT s.id, s.kiosk_id, s.slot_number, s.status, s.battery_level, s.current_rental_id, s.updated_at
	          FROM slots s
	          LEFT JOIN rentals r ON r.id = s.current_rental_id AND r.status IN ` + liveStatusesSQL + `
	          WHERE s.status = 'OCCUPIED' AND r.id IS NULL
	          ORDER BY s.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}
