package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

// ResourceAllocator is the only code that writes slot and device status. Every
// method runs on the caller's transaction so the allocation commits or rolls
// back together with the rental change that caused it.
type ResourceAllocator struct{}

func NewResourceAllocator() *ResourceAllocator {
	return &ResourceAllocator{}
}

// Reserve locks the best slot at kioskID, marks it OCCUPIED by rentalID and
// takes its device out of the kiosk as RENTED.
func (a *ResourceAllocator) Reserve(ctx context.Context, tx repository.Repositories, kioskID int64, rentalID uuid.UUID, minBattery int) (*domain.SlotCandidate, error) {
	logger.EnterMethod("ResourceAllocator.Reserve", "kioskID", kioskID, "rentalID", rentalID, "minBattery", minBattery)
	c, err := tx.Slots().LockBestCandidate(ctx, kioskID, minBattery)
	if err != nil {
		logger.ExitMethodWithError("ResourceAllocator.Reserve", err, "kioskID", kioskID)
		return nil, err
	}

	slot, err := tx.Slots().GetForUpdate(ctx, c.SlotID)
	if err != nil {
		return nil, err
	}
	device, err := tx.Devices().GetForUpdate(ctx, c.DeviceID)
	if err != nil {
		return nil, err
	}

	id := rentalID
	slot.Status = domain.SlotStatusOccupied
	slot.CurrentRentalID = &id
	slot.BatteryLevel = nil
	if err := tx.Slots().Update(ctx, slot); err != nil {
		return nil, err
	}

	device.Status = domain.DeviceStatusRented
	device.CurrentKioskID = nil
	device.CurrentSlotID = nil
	if err := tx.Devices().Update(ctx, device); err != nil {
		return nil, err
	}

	logger.ExitMethod("ResourceAllocator.Reserve", "slotID", c.SlotID, "deviceID", c.DeviceID)
	return c, nil
}

// ReleaseOrigin frees the rental's pickup slot. It only touches a slot still
// held by this rental, so calling it twice changes nothing the second time.
func (a *ResourceAllocator) ReleaseOrigin(ctx context.Context, tx repository.Repositories, r *domain.Rental) error {
	slot, err := tx.Slots().GetForUpdate(ctx, r.OriginSlotID)
	if err != nil {
		return err
	}
	if slot.Status != domain.SlotStatusOccupied {
		return nil
	}
	if slot.CurrentRentalID != nil && *slot.CurrentRentalID != r.ID {
		logger.Warn("Origin slot held by another rental, not releasing",
			"slotID", slot.ID, "rentalID", r.ID, "holder", slot.CurrentRentalID.String())
		return nil
	}
	slot.Status = domain.SlotStatusAvailable
	slot.CurrentRentalID = nil
	logger.Debug("Released origin slot", "slotID", slot.ID, "rentalID", r.ID)
	return tx.Slots().Update(ctx, slot)
}

// PlaceReturn seats deviceID in the given bay and makes it rentable again.
// The bay is left AVAILABLE: a returned device is stock, not a reservation.
func (a *ResourceAllocator) PlaceReturn(ctx context.Context, tx repository.Repositories, kioskID int64, slotNumber int, deviceID int64, batteryLevel int) (*domain.Slot, error) {
	slot, err := tx.Slots().GetByNumberForUpdate(ctx, kioskID, slotNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("kiosk %d has no slot %d", kioskID, slotNumber)
		}
		return nil, err
	}
	if slot.Status != domain.SlotStatusAvailable {
		return nil, domain.NewValidationError("slot %d at kiosk %d is %s and cannot accept a return", slotNumber, kioskID, slot.Status)
	}
	if other, err := tx.Devices().GetInSlot(ctx, slot.ID); err == nil && other.ID != deviceID {
		return nil, domain.NewValidationError("slot %d at kiosk %d already holds device %s", slotNumber, kioskID, other.Serial)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	device, err := tx.Devices().GetForUpdate(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	kiosk, slotID := kioskID, slot.ID
	device.Status = domain.DeviceStatusAvailable
	device.CurrentKioskID = &kiosk
	device.CurrentSlotID = &slotID
	device.BatteryLevel = batteryLevel
	if err := tx.Devices().Update(ctx, device); err != nil {
		return nil, err
	}

	battery := batteryLevel
	slot.BatteryLevel = &battery
	if err := tx.Slots().Update(ctx, slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// RecordDock notes that a rented device is seated back in its origin bay. The
// device stays RENTED; only its location is filled in so a cancellation can
// be verified.
func (a *ResourceAllocator) RecordDock(ctx context.Context, tx repository.Repositories, r *domain.Rental, kioskID int64, slotNumber, batteryLevel int) error {
	if r.DeviceID == nil {
		return domain.NewValidationError("rental %s has no device", r.ID)
	}
	slot, err := tx.Slots().GetByNumberForUpdate(ctx, kioskID, slotNumber)
	if err != nil {
		return err
	}
	if slot.ID != r.OriginSlotID || kioskID != r.OriginKioskID {
		return domain.NewValidationError("slot %d at kiosk %d is not the origin of rental %s", slotNumber, kioskID, r.ID)
	}
	device, err := tx.Devices().GetForUpdate(ctx, *r.DeviceID)
	if err != nil {
		return err
	}
	kiosk, slotID := kioskID, slot.ID
	device.CurrentKioskID = &kiosk
	device.CurrentSlotID = &slotID
	device.BatteryLevel = batteryLevel
	if err := tx.Devices().Update(ctx, device); err != nil {
		return err
	}
	battery := batteryLevel
	slot.BatteryLevel = &battery
	return tx.Slots().Update(ctx, slot)
}

// RestoreAtOrigin puts a cancelled rental's device back into stock in the bay
// it came from.
func (a *ResourceAllocator) RestoreAtOrigin(ctx context.Context, tx repository.Repositories, r *domain.Rental) error {
	if r.DeviceID == nil {
		return nil
	}
	device, err := tx.Devices().GetForUpdate(ctx, *r.DeviceID)
	if err != nil {
		return err
	}
	kiosk, slotID := r.OriginKioskID, r.OriginSlotID
	device.Status = domain.DeviceStatusAvailable
	device.CurrentKioskID = &kiosk
	device.CurrentSlotID = &slotID
	if err := tx.Devices().Update(ctx, device); err != nil {
		return err
	}
	slot, err := tx.Slots().GetForUpdate(ctx, slotID)
	if err != nil {
		return err
	}
	battery := device.BatteryLevel
	slot.BatteryLevel = &battery
	return tx.Slots().Update(ctx, slot)
}

// MarkLost writes off a device that never came back.
func (a *ResourceAllocator) MarkLost(ctx context.Context, tx repository.Repositories, deviceID int64) error {
	device, err := tx.Devices().GetForUpdate(ctx, deviceID)
	if err != nil {
		return err
	}
	device.Status = domain.DeviceStatusLost
	device.CurrentKioskID = nil
	device.CurrentSlotID = nil
	return tx.Devices().Update(ctx, device)
}

// ReportBattery records a charge reading for a bay and whatever device sits in it.
func (a *ResourceAllocator) ReportBattery(ctx context.Context, tx repository.Repositories, kioskID int64, slotNumber, batteryLevel int) error {
	slot, err := tx.Slots().GetByNumberForUpdate(ctx, kioskID, slotNumber)
	if err != nil {
		return err
	}
	device, err := tx.Devices().GetInSlot(ctx, slot.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	device.BatteryLevel = batteryLevel
	if err := tx.Devices().Update(ctx, device); err != nil {
		return err
	}
	battery := batteryLevel
	slot.BatteryLevel = &battery
	return tx.Slots().Update(ctx, slot)
}

// ReportSlotFault takes a bay out of service. A bay held by a live rental
// stays OCCUPIED until that rental releases it.
func (a *ResourceAllocator) ReportSlotFault(ctx context.Context, tx repository.Repositories, kioskID int64, slotNumber int, reason string) error {
	slot, err := tx.Slots().GetByNumberForUpdate(ctx, kioskID, slotNumber)
	if err != nil {
		return err
	}
	if slot.Status == domain.SlotStatusOccupied {
		logger.Alert("slot_fault_while_held", "kioskID", kioskID, "slotNumber", slotNumber, "reason", reason)
		return nil
	}
	if slot.Status == domain.SlotStatusError {
		return nil
	}
	slot.Status = domain.SlotStatusError
	logger.Warn("Slot taken out of service", "kioskID", kioskID, "slotNumber", slotNumber, "reason", reason)
	return tx.Slots().Update(ctx, slot)
}
