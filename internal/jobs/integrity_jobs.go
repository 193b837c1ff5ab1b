package jobs

import (
	"context"

	"chargeshare-backend/internal/logger"
)

// CheckIntegrity reports slots and devices held without a live rental. These
// are leaks the lifecycle should never produce, so they are alerted on and
// left for an operator rather than repaired automatically.
func (jr *JobRunner) CheckIntegrity(ctx context.Context) int {
	defects := 0

	slots, err := jr.store.Slots().ListOccupiedWithoutLiveRental(ctx)
	if err != nil {
		logger.Error("Failed to check slot integrity", "error", err)
	}
	for _, s := range slots {
		holder := ""
		if s.CurrentRentalID != nil {
			holder = s.CurrentRentalID.String()
		}
		logger.Alert("integrity_defect", "entity", "slot", "slotID", s.ID, "kioskID", s.KioskID,
			"slotNumber", s.SlotNumber, "currentRentalID", holder)
		defects++
	}

	devices, err := jr.store.Devices().ListRentedWithoutLiveRental(ctx)
	if err != nil {
		logger.Error("Failed to check device integrity", "error", err)
	}
	for _, d := range devices {
		logger.Alert("integrity_defect", "entity", "device", "deviceID", d.ID, "serial", d.Serial)
		defects++
	}

	if defects == 0 {
		logger.Info("Integrity check clean")
	}
	return defects
}
