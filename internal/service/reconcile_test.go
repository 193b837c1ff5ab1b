package service_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeshare-backend/internal/domain"
)

func TestLifecycle_OverdueAndLateFee(t *testing.T) {
	f := newFixture(t)
	f.store.SetFeeConfig(domain.FeeConfiguration{Name: "x2", FeeType: domain.FeeTypeMultiplier, Multiplier: decimal.NewFromInt(2)})
	f.credit(1, 0, 200)
	r, err := f.lifecycle.Start(f.ctx, 1, f.kiosk.ID, f.prepaid.ID)
	require.NoError(t, err)

	t.Run("Not yet due", func(t *testing.T) {
		require.NoError(t, f.lifecycle.MarkOverdue(f.ctx, r.ID))
		assert.Equal(t, domain.RentalStatusActive, f.rental(t, r.ID).Status)
	})

	f.clock.Advance(90 * time.Minute)

	t.Run("Marks overdue once", func(t *testing.T) {
		require.NoError(t, f.lifecycle.MarkOverdue(f.ctx, r.ID))
		require.NoError(t, f.lifecycle.MarkOverdue(f.ctx, r.ID))
		assert.Equal(t, domain.RentalStatusOverdue, f.rental(t, r.ID).Status)
		assert.Equal(t, 1, f.hook.count(domain.EventRentalOverdue))
	})

	t.Run("Assesses the fee and notifies once", func(t *testing.T) {
		require.NoError(t, f.lifecycle.AssessLateFee(f.ctx, r.ID))
		got := f.rental(t, r.ID)
		assert.Equal(t, "60", got.OverdueAmount.String())
		assert.Equal(t, "60", got.AmountDue.String())
		assert.Contains(t, got.Metadata, domain.MetaLateFeeNotified)

		f.clock.Advance(10 * time.Minute)
		require.NoError(t, f.lifecycle.AssessLateFee(f.ctx, r.ID))
		assert.Equal(t, "80", f.rental(t, r.ID).OverdueAmount.String())
		assert.Equal(t, 1, f.hook.count(domain.EventLateFeeCharged))
	})

	t.Run("Return settles the assessed fee", func(t *testing.T) {
		out, err := f.lifecycle.Return(f.ctx, r.ID, f.kiosk.ID, f.slots[3].SlotNumber, 30)
		require.NoError(t, err)
		assert.Equal(t, "80", out.OverdueAmount.String())
		assert.Equal(t, domain.PaymentStatusPaid, out.PaymentStatus)
		_, wallet := f.balance(t, 1)
		assert.Equal(t, "60.00", wallet)
	})
}

func TestLifecycle_AssessLateFee_GraceAndPostpaid(t *testing.T) {
	f := newFixture(t)
	f.store.SetFeeConfig(domain.FeeConfiguration{Name: "grace", FeeType: domain.FeeTypeMultiplier,
		Multiplier: decimal.NewFromInt(2), GracePeriodMinutes: 45})
	f.credit(1, 0, 100)
	prepaid, err := f.lifecycle.Start(f.ctx, 1, f.kiosk.ID, f.prepaid.ID)
	require.NoError(t, err)
	postpaid, err := f.lifecycle.Start(f.ctx, 2, f.kiosk.ID, f.postpaid.ID)
	require.NoError(t, err)

	f.clock.Advance(90 * time.Minute)
	for _, r := range []*domain.Rental{prepaid, postpaid} {
		require.NoError(t, f.lifecycle.MarkOverdue(f.ctx, r.ID))
		require.NoError(t, f.lifecycle.AssessLateFee(f.ctx, r.ID))
	}

	assert.True(t, f.rental(t, prepaid.ID).OverdueAmount.IsZero())
	assert.True(t, f.rental(t, postpaid.ID).OverdueAmount.IsZero())
	assert.Equal(t, 0, f.hook.count(domain.EventLateFeeCharged))
}

func TestLifecycle_ForceClose(t *testing.T) {
	t.Run("Abandoned after the ceiling", func(t *testing.T) {
		f := newFixture(t)
		f.store.SetFeeConfig(domain.FeeConfiguration{Name: "capped", FeeType: domain.FeeTypeMultiplier,
			Multiplier: decimal.NewFromInt(2), MaxDailyRate: decimal.NewNullDecimal(decimal.NewFromInt(24))})
		f.credit(1, 0, 200)
		r, err := f.lifecycle.Start(f.ctx, 1, f.kiosk.ID, f.prepaid.ID)
		require.NoError(t, err)

		f.clock.Advance(25*time.Hour + time.Minute)
		require.NoError(t, f.lifecycle.MarkOverdue(f.ctx, r.ID))
		require.NoError(t, f.lifecycle.ForceClose(f.ctx, r.ID))

		got := f.rental(t, r.ID)
		assert.Equal(t, domain.RentalStatusCompleted, got.Status)
		assert.False(t, got.ReturnedOnTime)
		assert.Equal(t, "abandoned", got.Metadata[domain.MetaCloseReason])
		assert.Equal(t, "10.00", got.Metadata[domain.MetaAbandonmentFee])
		assert.Equal(t, "24.01", got.OverdueAmount.String())
		assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
		assert.Equal(t, "94.01", got.AmountPaid.String())
		assert.Len(t, f.payments(t, r.ID, domain.PaymentKindPenalty), 1)

		assert.Equal(t, domain.DeviceStatusLost, f.device(t, *r.DeviceID).Status)
		origin := f.slot(t, r.OriginSlotID)
		assert.Equal(t, domain.SlotStatusAvailable, origin.Status)
		assert.Nil(t, origin.CurrentRentalID)

		_, wallet := f.balance(t, 1)
		assert.Equal(t, "105.99", wallet)
		assert.Equal(t, 1, f.hook.count(domain.EventRentalAbandoned))

		// terminal rentals are left alone
		require.NoError(t, f.lifecycle.ForceClose(f.ctx, r.ID))
		assert.Equal(t, 1, f.hook.count(domain.EventRentalAbandoned))
	})

	t.Run("Before the ceiling", func(t *testing.T) {
		f := newFixture(t)
		f.credit(1, 0, 200)
		r, err := f.lifecycle.Start(f.ctx, 1, f.kiosk.ID, f.prepaid.ID)
		require.NoError(t, err)

		f.clock.Advance(2 * time.Hour)
		require.NoError(t, f.lifecycle.MarkOverdue(f.ctx, r.ID))
		require.NoError(t, f.lifecycle.ForceClose(f.ctx, r.ID))
		assert.Equal(t, domain.RentalStatusOverdue, f.rental(t, r.ID).Status)
	})
}

func TestLifecycle_ExpirePending(t *testing.T) {
	f := newFixture(t)
	r := f.stuckPending(t, 1)

	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.lifecycle.ExpirePending(f.ctx, r.ID))
	assert.Equal(t, domain.RentalStatusPending, f.rental(t, r.ID).Status)

	f.clock.Advance(6 * time.Minute)
	require.NoError(t, f.lifecycle.ExpirePending(f.ctx, r.ID))
	got := f.rental(t, r.ID)
	assert.Equal(t, domain.RentalStatusCancelled, got.Status)
	assert.Equal(t, "payment_timeout", got.Metadata[domain.MetaCancelReason])
	assert.Equal(t, domain.PaymentStatusNone, got.PaymentStatus)

	assert.Equal(t, domain.SlotStatusAvailable, f.slot(t, r.OriginSlotID).Status)
	d := f.device(t, *r.DeviceID)
	assert.Equal(t, domain.DeviceStatusAvailable, d.Status)
	require.NotNil(t, d.CurrentSlotID)
	assert.Equal(t, r.OriginSlotID, *d.CurrentSlotID)

	// the device is rentable again
	f.credit(2, 0, 100)
	_, err := f.lifecycle.Start(f.ctx, 2, f.kiosk.ID, f.prepaid.ID)
	require.NoError(t, err)
}

func TestLifecycle_SendDueReminder(t *testing.T) {
	f := newFixture(t)
	r, err := f.lifecycle.Start(f.ctx, 1, f.kiosk.ID, f.postpaid.ID)
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.SendDueReminder(f.ctx, r.ID))
	require.NoError(t, f.lifecycle.SendDueReminder(f.ctx, r.ID))
	assert.Equal(t, 1, f.hook.count(domain.EventDueReminder))
	assert.Equal(t, "true", f.rental(t, r.ID).Metadata[domain.MetaReminderSent])
}

func TestLifecycle_CompleteDockedReturn(t *testing.T) {
	f := newFixture(t)
	f.credit(1, 0, 100)
	r, err := f.lifecycle.Start(f.ctx, 1, f.kiosk.ID, f.prepaid.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	f.dock(t, r, f.slots[0], 92)

	t.Run("Inside the cancellation window", func(t *testing.T) {
		require.NoError(t, f.lifecycle.CompleteDockedReturn(f.ctx, r.ID))
		assert.Equal(t, domain.RentalStatusActive, f.rental(t, r.ID).Status)
	})

	t.Run("After the window closes", func(t *testing.T) {
		f.clock.Advance(10 * time.Minute)
		docked, err := f.store.Rentals().ListDockedAtOrigin(f.ctx, f.clock.Now().Add(-5*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, docked, 1)

		require.NoError(t, f.lifecycle.CompleteDockedReturn(f.ctx, r.ID))
		got := f.rental(t, r.ID)
		assert.Equal(t, domain.RentalStatusCompleted, got.Status)
		assert.True(t, got.ReturnedOnTime)
		require.NotNil(t, got.ReturnSlotID)
		assert.Equal(t, r.OriginSlotID, *got.ReturnSlotID)

		d := f.device(t, *r.DeviceID)
		assert.Equal(t, domain.DeviceStatusAvailable, d.Status)
		assert.Equal(t, 92, d.BatteryLevel)
		assert.Equal(t, domain.SlotStatusAvailable, f.slot(t, r.OriginSlotID).Status)
	})
}
