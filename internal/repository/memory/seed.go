package memory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
)

// Fixture helpers. They bypass validation and are meant for tests and the
// in-memory demo mode only.

func (s *Store) AddKiosk(k domain.Kiosk) *domain.Kiosk {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k.ID == 0 {
		k.ID = s.st.nextID()
	}
	if k.Status == "" {
		k.Status = domain.KioskStatusOnline
	}
	k.CreatedAt = s.now()
	s.st.kiosks[k.ID] = &k
	return &k
}

func (s *Store) AddSlot(sl domain.Slot) *domain.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl.ID == 0 {
		sl.ID = s.st.nextID()
	}
	if sl.Status == "" {
		sl.Status = domain.SlotStatusAvailable
	}
	sl.UpdatedAt = s.now()
	s.st.slots[sl.ID] = sl.Clone()
	return &sl
}

// AddDevice stores d. When slot is non-nil the device is seated in it.
func (s *Store) AddDevice(d domain.Device, slot *domain.Slot) *domain.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.st.nextID()
	}
	if d.Status == "" {
		d.Status = domain.DeviceStatusAvailable
	}
	if slot != nil {
		kioskID, slotID := slot.KioskID, slot.ID
		d.CurrentKioskID, d.CurrentSlotID = &kioskID, &slotID
	}
	d.UpdatedAt = s.now()
	s.st.devices[d.ID] = d.Clone()
	return &d
}

func (s *Store) AddPackage(p domain.RentalPackage) *domain.RentalPackage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.st.nextID()
	}
	p.CreatedAt = s.now()
	s.st.packages[p.ID] = &p
	return &p
}

// SetFeeConfig replaces the active fee configuration.
func (s *Store) SetFeeConfig(c domain.FeeConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.feeConfigs {
		s.st.feeConfigs[i].IsActive = false
	}
	c.IsActive = true
	c.UpdatedAt = s.now()
	s.st.feeConfigs = append(s.st.feeConfigs, c)
}

// Credit sets a user's balances.
func (s *Store) Credit(userID int64, points, wallet decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.accounts[userID] = &domain.Account{UserID: userID, Points: points, Wallet: wallet}
}

// SeedDemo creates one online kiosk with a row of charged devices and two
// packages. Used when the server runs without a database.
func (s *Store) SeedDemo(slots int) {
	k := s.AddKiosk(domain.Kiosk{Serial: "KIOSK-0001", Name: "Demo kiosk"})
	for i := 1; i <= slots; i++ {
		sl := s.AddSlot(domain.Slot{KioskID: k.ID, SlotNumber: i})
		s.AddDevice(domain.Device{Serial: fmt.Sprintf("PB-%04d", i), BatteryLevel: 100}, sl)
	}
	s.AddPackage(domain.RentalPackage{Name: "1 hour", DurationMinutes: 60, Price: decimal.NewFromInt(5),
		PaymentModel: domain.PaymentModelPrepaid, IsActive: true})
	s.AddPackage(domain.RentalPackage{Name: "Pay as you go", DurationMinutes: 60, Price: decimal.NewFromInt(6),
		PaymentModel: domain.PaymentModelPostpaid, IsActive: true})
}

// SetClock overrides the timestamp source used for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
