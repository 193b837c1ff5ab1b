package service

import (
	"context"
	"errors"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

// KioskEventService turns hardware reports into lifecycle and allocator
// calls. Kiosks resend events until acknowledged, so every handler tolerates
// duplicates.
type KioskEventService struct {
	store     repository.Store
	alloc     *ResourceAllocator
	lifecycle *Lifecycle
}

func NewKioskEventService(store repository.Store, alloc *ResourceAllocator, lifecycle *Lifecycle) *KioskEventService {
	return &KioskEventService{store: store, alloc: alloc, lifecycle: lifecycle}
}

// HandleDocked processes a device seated in a bay. A rented device back in
// its origin bay while the rental can still be cancelled is only recorded;
// anywhere else it is a return.
func (s *KioskEventService) HandleDocked(ctx context.Context, kioskSerial string, slotNumber int, deviceSerial string, batteryLevel int) error {
	logger.EnterMethod("KioskEventService.HandleDocked", "kiosk", kioskSerial, "slot", slotNumber, "device", deviceSerial)
	kiosk, err := s.store.Kiosks().GetBySerial(ctx, kioskSerial)
	if err != nil {
		return err
	}
	device, err := s.store.Devices().GetBySerial(ctx, deviceSerial)
	if err != nil {
		return err
	}
	rental, err := s.store.Rentals().GetLiveByDevice(ctx, device.ID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info("Docked device has no live rental, ignoring", "kiosk", kioskSerial, "slot", slotNumber, "device", deviceSerial)
		return nil
	}
	if err != nil {
		return err
	}

	if kiosk.ID == rental.OriginKioskID && s.lifecycle.cancelWindowOpen(rental, s.lifecycle.now()) {
		origin, err := s.store.Slots().GetByID(ctx, rental.OriginSlotID)
		if err != nil {
			return err
		}
		if origin.SlotNumber == slotNumber {
			return s.dockAtOrigin(ctx, rental, kiosk.ID, slotNumber, batteryLevel)
		}
	}

	_, err = s.lifecycle.Return(ctx, rental.ID, kiosk.ID, slotNumber, batteryLevel)
	if err != nil {
		logger.ExitMethodWithError("KioskEventService.HandleDocked", err, "rentalID", rental.ID)
		return err
	}
	logger.ExitMethod("KioskEventService.HandleDocked", "rentalID", rental.ID, "outcome", "returned")
	return nil
}

func (s *KioskEventService) dockAtOrigin(ctx context.Context, rental *domain.Rental, kioskID int64, slotNumber, batteryLevel int) error {
	err := s.lifecycle.inTx(ctx, "record_dock", func(ctx context.Context, tx repository.Repositories) error {
		r, err := tx.Rentals().GetForUpdate(ctx, rental.ID)
		if err != nil {
			return err
		}
		if !r.Status.IsLive() {
			return nil
		}
		return s.alloc.RecordDock(ctx, tx, r, kioskID, slotNumber, batteryLevel)
	})
	if err != nil {
		return err
	}
	logger.ExitMethod("KioskEventService.HandleDocked", "rentalID", rental.ID, "outcome", "docked_at_origin")
	return nil
}

func (s *KioskEventService) HandleBattery(ctx context.Context, kioskSerial string, slotNumber, batteryLevel int) error {
	if batteryLevel < 0 || batteryLevel > 100 {
		return domain.NewValidationError("battery level %d out of range", batteryLevel)
	}
	kiosk, err := s.store.Kiosks().GetBySerial(ctx, kioskSerial)
	if err != nil {
		return err
	}
	return s.lifecycle.inTx(ctx, "report_battery", func(ctx context.Context, tx repository.Repositories) error {
		return s.alloc.ReportBattery(ctx, tx, kiosk.ID, slotNumber, batteryLevel)
	})
}

func (s *KioskEventService) HandleFault(ctx context.Context, kioskSerial string, slotNumber int, reason string) error {
	kiosk, err := s.store.Kiosks().GetBySerial(ctx, kioskSerial)
	if err != nil {
		return err
	}
	return s.lifecycle.inTx(ctx, "report_fault", func(ctx context.Context, tx repository.Repositories) error {
		return s.alloc.ReportSlotFault(ctx, tx, kiosk.ID, slotNumber, reason)
	})
}
