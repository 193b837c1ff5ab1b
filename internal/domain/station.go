package domain

import (
	"time"

	"github.com/google/uuid"
)

type KioskStatus string

const (
	KioskStatusOnline      KioskStatus = "ONLINE"
	KioskStatusOffline     KioskStatus = "OFFLINE"
	KioskStatusMaintenance KioskStatus = "MAINTENANCE"
)

type Kiosk struct {
	ID        int64       `json:"id"`
	Serial    string      `json:"serial_number"`
	Name      string      `json:"name"`
	Status    KioskStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

type SlotStatus string

// AVAILABLE means in service and not held by a rental; the bay may or may not
// contain a device. OCCUPIED means held by a live rental.
const (
	SlotStatusAvailable   SlotStatus = "AVAILABLE"
	SlotStatusOccupied    SlotStatus = "OCCUPIED"
	SlotStatusMaintenance SlotStatus = "MAINTENANCE"
	SlotStatusError       SlotStatus = "ERROR"
)

type Slot struct {
	ID              int64      `json:"id"`
	KioskID         int64      `json:"kiosk_id"`
	SlotNumber      int        `json:"slot_number"`
	Status          SlotStatus `json:"status"`
	BatteryLevel    *int       `json:"battery_level,omitempty"`
	CurrentRentalID *uuid.UUID `json:"current_rental_id,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (s *Slot) Clone() *Slot {
	c := *s
	if s.BatteryLevel != nil {
		v := *s.BatteryLevel
		c.BatteryLevel = &v
	}
	if s.CurrentRentalID != nil {
		v := *s.CurrentRentalID
		c.CurrentRentalID = &v
	}
	return &c
}

type DeviceStatus string

const (
	DeviceStatusAvailable   DeviceStatus = "AVAILABLE"
	DeviceStatusRented      DeviceStatus = "RENTED"
	DeviceStatusMaintenance DeviceStatus = "MAINTENANCE"
	DeviceStatusDamaged     DeviceStatus = "DAMAGED"
	DeviceStatusLost        DeviceStatus = "LOST"
)

// Device is a rentable power bank. While RENTED its location is null: the
// device is in the field. The single exception is a rented device seated back
// in its origin slot inside the cancellation window (see InOriginSlot).
type Device struct {
	ID             int64        `json:"id"`
	Serial         string       `json:"serial_number"`
	Status         DeviceStatus `json:"status"`
	BatteryLevel   int          `json:"battery_level"`
	CurrentKioskID *int64       `json:"current_kiosk_id,omitempty"`
	CurrentSlotID  *int64       `json:"current_slot_id,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// InField reports whether the device has no kiosk location.
func (d *Device) InField() bool {
	return d.CurrentKioskID == nil && d.CurrentSlotID == nil
}

// InOriginSlot reports whether the device is seated in the rental's pickup bay.
func (d *Device) InOriginSlot(r *Rental) bool {
	return d.CurrentKioskID != nil && d.CurrentSlotID != nil &&
		*d.CurrentKioskID == r.OriginKioskID && *d.CurrentSlotID == r.OriginSlotID
}

func (d *Device) Clone() *Device {
	c := *d
	c.CurrentKioskID = cloneInt64(d.CurrentKioskID)
	c.CurrentSlotID = cloneInt64(d.CurrentSlotID)
	return &c
}

// SlotCandidate is a reservable (slot, device) pair found by the allocator.
type SlotCandidate struct {
	SlotID       int64
	SlotNumber   int
	DeviceID     int64
	BatteryLevel int
}
