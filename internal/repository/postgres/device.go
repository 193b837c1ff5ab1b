package postgres

import (
	"context"
	"time"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/repository"
)

const deviceColumns = `id, serial_number, status, battery_level, current_kiosk_id, current_slot_id, updated_at`

type deviceRepository struct {
	db DBTX
}

func NewDeviceRepository(db DBTX) repository.DeviceRepository {
	return &deviceRepository{db: db}
}

func scanDevice(row scanner) (*domain.Device, error) {
	d := &domain.Device{}
	if err := row.Scan(&d.ID, &d.Serial, &d.Status, &d.BatteryLevel, &d.CurrentKioskID, &d.CurrentSlotID, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *deviceRepository) GetByID(ctx context.Context, id int64) (*domain.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "device %d not found", id)
	}
	return d, nil
}

func (r *deviceRepository) GetBySerial(ctx context.Context, serial string) (*domain.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE serial_number = $1`, serial))
	if err != nil {
		return nil, notFound(err, "device %s not found", serial)
	}
	return d, nil
}

func (r *deviceRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "device %d not found", id)
	}
	return d, nil
}

func (r *deviceRepository) GetInSlot(ctx context.Context, slotID int64) (*domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE current_slot_id = $1 LIMIT 1 FOR UPDATE`
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, slotID))
	if err != nil {
		return nil, notFound(err, "no device in slot %d", slotID)
	}
	return d, nil
}

func (r *deviceRepository) Update(ctx context.Context, d *domain.Device) error {
	d.UpdatedAt = time.Now()
	query := `UPDATE devices SET status=$1, battery_level=$2, current_kiosk_id=$3, current_slot_id=$4, updated_at=$5 WHERE id=$6`
	res, err := r.db.ExecContext(ctx, query, d.Status, d.BatteryLevel, d.CurrentKioskID, d.CurrentSlotID, d.UpdatedAt, d.ID)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFoundError("device %d not found", d.ID)
	}
	return nil
}

func (r *deviceRepository) ListRentedWithoutLiveRental(ctx context.Context) ([]domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices d
	          WHERE d.status = 'RENTED'
	            AND NOT EXISTS (SELECT 1 FROM rentals r WHERE r.device_id = d.id AND r.status IN ` + liveStatusesSQL + `)
	          ORDER BY d.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}
