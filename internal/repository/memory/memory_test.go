package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/repository"
)

func TestWithinTx_RollbackDiscardsWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	k := s.AddKiosk(domain.Kiosk{Serial: "K1"})
	sl := s.AddSlot(domain.Slot{KioskID: k.ID, SlotNumber: 1})

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		slot, err := tx.Slots().GetForUpdate(ctx, sl.ID)
		require.NoError(t, err)
		slot.Status = domain.SlotStatusMaintenance
		require.NoError(t, tx.Slots().Update(ctx, slot))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Slots().GetByID(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotStatusAvailable, got.Status)
}

func TestWithinTx_CommitPublishesWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	k := s.AddKiosk(domain.Kiosk{Serial: "K1"})
	sl := s.AddSlot(domain.Slot{KioskID: k.ID, SlotNumber: 1})

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		slot, err := tx.Slots().GetForUpdate(ctx, sl.ID)
		if err != nil {
			return err
		}
		slot.Status = domain.SlotStatusError
		return tx.Slots().Update(ctx, slot)
	})
	require.NoError(t, err)

	got, err := s.Slots().GetByID(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotStatusError, got.Status)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	d := s.AddDevice(domain.Device{Serial: "PB-1", BatteryLevel: 80}, nil)

	got, err := s.Devices().GetByID(ctx, d.ID)
	require.NoError(t, err)
	got.BatteryLevel = 5

	again, err := s.Devices().GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, again.BatteryLevel)
}

func TestRentals_OneLivePerUser(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := &domain.Rental{Code: "A", UserID: 1, Status: domain.RentalStatusActive}
	require.NoError(t, s.Rentals().Create(ctx, first))

	err := s.Rentals().Create(ctx, &domain.Rental{Code: "B", UserID: 1, Status: domain.RentalStatusPending})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = s.Rentals().Create(ctx, &domain.Rental{Code: "A", UserID: 2, Status: domain.RentalStatusPending})
	assert.ErrorIs(t, err, repository.ErrDuplicateRentalCode)

	first.Status = domain.RentalStatusCompleted
	require.NoError(t, s.Rentals().Update(ctx, first))
	assert.NoError(t, s.Rentals().Create(ctx, &domain.Rental{Code: "C", UserID: 1, Status: domain.RentalStatusPending}))
}

func TestSlots_LockBestCandidate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	k := s.AddKiosk(domain.Kiosk{Serial: "K1"})
	low := s.AddSlot(domain.Slot{KioskID: k.ID, SlotNumber: 1})
	high := s.AddSlot(domain.Slot{KioskID: k.ID, SlotNumber: 2})
	held := s.AddSlot(domain.Slot{KioskID: k.ID, SlotNumber: 3, Status: domain.SlotStatusMaintenance})
	s.AddDevice(domain.Device{Serial: "low", BatteryLevel: 40}, low)
	want := s.AddDevice(domain.Device{Serial: "high", BatteryLevel: 90}, high)
	s.AddDevice(domain.Device{Serial: "held", BatteryLevel: 100}, held)

	c, err := s.Slots().LockBestCandidate(ctx, k.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, high.ID, c.SlotID)
	assert.Equal(t, want.ID, c.DeviceID)

	_, err = s.Slots().LockBestCandidate(ctx, k.ID, 95)
	assert.ErrorIs(t, err, domain.ErrResourceUnavailable)
}

func TestIntegrityQueries(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	k := s.AddKiosk(domain.Kiosk{Serial: "K1"})
	orphan := uuid.New()
	s.AddSlot(domain.Slot{KioskID: k.ID, SlotNumber: 1, Status: domain.SlotStatusOccupied, CurrentRentalID: &orphan})
	s.AddDevice(domain.Device{Serial: "lost", Status: domain.DeviceStatusRented}, nil)

	slots, err := s.Slots().ListOccupiedWithoutLiveRental(ctx)
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	devices, err := s.Devices().ListRentedWithoutLiveRental(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestRentals_ListDockedAtOrigin(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	k := s.AddKiosk(domain.Kiosk{Serial: "K1"})
	sl := s.AddSlot(domain.Slot{KioskID: k.ID, SlotNumber: 1})
	d := s.AddDevice(domain.Device{Serial: "PB", Status: domain.DeviceStatusRented}, sl)

	started := time.Now().Add(-10 * time.Minute)
	rt := &domain.Rental{Code: "X", UserID: 1, OriginKioskID: k.ID, OriginSlotID: sl.ID, DeviceID: &d.ID,
		Status: domain.RentalStatusActive, StartedAt: &started}
	require.NoError(t, s.Rentals().Create(ctx, rt))

	got, err := s.Rentals().ListDockedAtOrigin(ctx, time.Now().Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rt.ID, got[0].ID)

	got, err = s.Rentals().ListDockedAtOrigin(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRentals_ListByUserPaginates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.SetClock(func() time.Time { return at })
		require.NoError(t, s.Rentals().Create(ctx, &domain.Rental{Code: uuid.NewString(), UserID: 1, Status: domain.RentalStatusCompleted}))
	}

	page, total, err := s.Rentals().ListByUser(ctx, 1, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(5), total)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	page, _, err = s.Rentals().ListByUser(ctx, 1, "", 3, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}
