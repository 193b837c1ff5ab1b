package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/repository"
)

// Store keeps every table in process memory. Transactions are serialized by a
// single mutex and run against a private copy of the state that replaces the
// shared one only on commit, which gives the same all-or-nothing visibility
// as the relational store. Intended for tests and local demos.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

type state struct {
	rentals       map[uuid.UUID]*domain.Rental
	extensions    []domain.Extension
	kiosks        map[int64]*domain.Kiosk
	slots         map[int64]*domain.Slot
	devices       map[int64]*domain.Device
	packages      map[int64]*domain.RentalPackage
	payments      []domain.RentalPayment
	feeConfigs    []domain.FeeConfiguration
	appConfig     map[string]string
	notifications []domain.Notification
	accounts      map[int64]*domain.Account
	transactions  map[uuid.UUID]*domain.LedgerTransaction
	seq           int64
}

func newState() *state {
	return &state{
		rentals:      make(map[uuid.UUID]*domain.Rental),
		kiosks:       make(map[int64]*domain.Kiosk),
		slots:        make(map[int64]*domain.Slot),
		devices:      make(map[int64]*domain.Device),
		packages:     make(map[int64]*domain.RentalPackage),
		appConfig:    make(map[string]string),
		accounts:     make(map[int64]*domain.Account),
		transactions: make(map[uuid.UUID]*domain.LedgerTransaction),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.rentals {
		c.rentals[k] = v.Clone()
	}
	c.extensions = append([]domain.Extension(nil), s.extensions...)
	for k, v := range s.kiosks {
		kk := *v
		c.kiosks[k] = &kk
	}
	for k, v := range s.slots {
		c.slots[k] = v.Clone()
	}
	for k, v := range s.devices {
		c.devices[k] = v.Clone()
	}
	for k, v := range s.packages {
		p := *v
		c.packages[k] = &p
	}
	c.payments = append([]domain.RentalPayment(nil), s.payments...)
	c.feeConfigs = append([]domain.FeeConfiguration(nil), s.feeConfigs...)
	for k, v := range s.appConfig {
		c.appConfig[k] = v
	}
	c.notifications = append([]domain.Notification(nil), s.notifications...)
	for k, v := range s.accounts {
		a := *v
		c.accounts[k] = &a
	}
	for k, v := range s.transactions {
		t := *v
		c.transactions[k] = &t
	}
	c.seq = s.seq
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithinTx implements repository.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &repos{store: s, tx: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) auto() *repos { return &repos{store: s} }

func (s *Store) Rentals() repository.RentalRepository       { return rentalRepo{s.auto()} }
func (s *Store) Extensions() repository.ExtensionRepository { return extensionRepo{s.auto()} }
func (s *Store) Kiosks() repository.KioskRepository         { return kioskRepo{s.auto()} }
func (s *Store) Slots() repository.SlotRepository           { return slotRepo{s.auto()} }
func (s *Store) Devices() repository.DeviceRepository       { return deviceRepo{s.auto()} }
func (s *Store) Packages() repository.PackageRepository     { return packageRepo{s.auto()} }
func (s *Store) Payments() repository.PaymentRepository     { return paymentRepo{s.auto()} }
func (s *Store) Accounts() repository.AccountRepository     { return accountRepo{s.auto()} }
func (s *Store) FeeConfigs() repository.FeeConfigRepository { return feeConfigRepo{s.auto()} }
func (s *Store) AppConfig() repository.AppConfigRepository  { return appConfigRepo{s.auto()} }
func (s *Store) Notifications() repository.NotificationRepository {
	return notificationRepo{s.auto()}
}

// repos is bound either to a transaction's private state (tx != nil) or to
// the shared state, in which case every call takes the store mutex.
type repos struct {
	store *Store
	tx    *state
}

func (r *repos) with(fn func(st *state) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.st)
}

func (r *repos) Rentals() repository.RentalRepository       { return rentalRepo{r} }
func (r *repos) Extensions() repository.ExtensionRepository { return extensionRepo{r} }
func (r *repos) Kiosks() repository.KioskRepository         { return kioskRepo{r} }
func (r *repos) Slots() repository.SlotRepository           { return slotRepo{r} }
func (r *repos) Devices() repository.DeviceRepository       { return deviceRepo{r} }
func (r *repos) Packages() repository.PackageRepository     { return packageRepo{r} }
func (r *repos) Payments() repository.PaymentRepository     { return paymentRepo{r} }
func (r *repos) Accounts() repository.AccountRepository     { return accountRepo{r} }

// Rentals

type rentalRepo struct{ r *repos }

func (x rentalRepo) Create(ctx context.Context, rt *domain.Rental) error {
	return x.r.with(func(st *state) error {
		for _, existing := range st.rentals {
			if existing.Code == rt.Code {
				return repository.ErrDuplicateRentalCode
			}
			if existing.UserID == rt.UserID && existing.Status.IsLive() && rt.Status.IsLive() {
				return domain.NewValidationError("user %d already has a live rental", rt.UserID)
			}
		}
		if rt.ID == uuid.Nil {
			rt.ID = uuid.New()
		}
		now := x.r.store.now()
		rt.CreatedAt = now
		rt.UpdatedAt = now
		st.rentals[rt.ID] = rt.Clone()
		return nil
	})
}

func (x rentalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	var out *domain.Rental
	err := x.r.with(func(st *state) error {
		rt, ok := st.rentals[id]
		if !ok {
			return domain.NewNotFoundError("rental %s not found", id)
		}
		out = rt.Clone()
		return nil
	})
	return out, err
}

func (x rentalRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	return x.GetByID(ctx, id)
}

func (x rentalRepo) Update(ctx context.Context, rt *domain.Rental) error {
	return x.r.with(func(st *state) error {
		if _, ok := st.rentals[rt.ID]; !ok {
			return domain.NewNotFoundError("rental %s not found", rt.ID)
		}
		rt.UpdatedAt = x.r.store.now()
		st.rentals[rt.ID] = rt.Clone()
		return nil
	})
}

func (x rentalRepo) GetLiveByUser(ctx context.Context, userID int64) (*domain.Rental, error) {
	return x.findOne(func(rt *domain.Rental) bool {
		return rt.UserID == userID && rt.Status.IsLive()
	}, "no live rental for user %d", userID)
}

func (x rentalRepo) GetLiveByDevice(ctx context.Context, deviceID int64) (*domain.Rental, error) {
	return x.findOne(func(rt *domain.Rental) bool {
		return rt.DeviceID != nil && *rt.DeviceID == deviceID && rt.Status.IsLive()
	}, "no live rental for device %d", deviceID)
}

func (x rentalRepo) findOne(match func(*domain.Rental) bool, format string, arg any) (*domain.Rental, error) {
	var out *domain.Rental
	err := x.r.with(func(st *state) error {
		for _, rt := range st.rentals {
			if match(rt) {
				out = rt.Clone()
				return nil
			}
		}
		return domain.NewNotFoundError(format, arg)
	})
	return out, err
}

func (x rentalRepo) list(match func(st *state, rt *domain.Rental) bool, less func(a, b *domain.Rental) bool, limit int) ([]domain.Rental, error) {
	var out []domain.Rental
	err := x.r.with(func(st *state) error {
		var hits []*domain.Rental
		for _, rt := range st.rentals {
			if match(st, rt) {
				hits = append(hits, rt)
			}
		}
		sort.Slice(hits, func(i, j int) bool { return less(hits[i], hits[j]) })
		for _, rt := range hits {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, *rt.Clone())
		}
		return nil
	})
	return out, err
}

func byDueAt(a, b *domain.Rental) bool     { return keyLess(a.DueAt, a.ID, b.DueAt, b.ID) }
func byCreatedAt(a, b *domain.Rental) bool { return keyLess(a.CreatedAt, a.ID, b.CreatedAt, b.ID) }

// keyLess orders by time then id bytes, which is how postgres compares uuids.
func keyLess(at time.Time, id uuid.UUID, bt time.Time, bid uuid.UUID) bool {
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return bytes.Compare(id[:], bid[:]) < 0
}

func pastCursor(c repository.Cursor, at time.Time, id uuid.UUID) bool {
	return c.IsZero() || keyLess(c.At, c.ID, at, id)
}

func (x rentalRepo) ListByUser(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error) {
	all, err := x.list(func(_ *state, rt *domain.Rental) bool {
		return rt.UserID == userID && (status == "" || string(rt.Status) == status)
	}, func(a, b *domain.Rental) bool { return a.CreatedAt.After(b.CreatedAt) }, 0)
	if err != nil {
		return nil, 0, err
	}
	total := int32(len(all))
	start := (page - 1) * pageSize
	if start < 0 || start >= total {
		return []domain.Rental{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (x rentalRepo) ListDueBefore(ctx context.Context, q repository.DueQuery) ([]domain.Rental, error) {
	return x.list(func(_ *state, rt *domain.Rental) bool {
		return rt.Status == q.Status && rt.DueAt.Before(q.Before) &&
			(q.PaymentModel == "" || rt.PaymentModel == q.PaymentModel) &&
			pastCursor(q.After, rt.DueAt, rt.ID)
	}, byDueAt, q.Limit)
}

func (x rentalRepo) ListCreatedBefore(ctx context.Context, status domain.RentalStatus, before time.Time, limit int) ([]domain.Rental, error) {
	return x.list(func(_ *state, rt *domain.Rental) bool {
		return rt.Status == status && rt.CreatedAt.Before(before)
	}, byCreatedAt, limit)
}

func (x rentalRepo) ListByPaymentStatus(ctx context.Context, status domain.PaymentStatus, after repository.Cursor, limit int) ([]domain.Rental, error) {
	return x.list(func(_ *state, rt *domain.Rental) bool {
		return rt.PaymentStatus == status && pastCursor(after, rt.CreatedAt, rt.ID)
	}, byCreatedAt, limit)
}

func (x rentalRepo) ListDueBetween(ctx context.Context, from, to time.Time, limit int) ([]domain.Rental, error) {
	return x.list(func(_ *state, rt *domain.Rental) bool {
		return rt.Status == domain.RentalStatusActive && !rt.DueAt.Before(from) && rt.DueAt.Before(to)
	}, byDueAt, limit)
}

func (x rentalRepo) ListDockedAtOrigin(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Rental, error) {
	return x.list(func(st *state, rt *domain.Rental) bool {
		if !rt.Status.IsLive() || rt.DeviceID == nil || rt.StartedAt == nil || !rt.StartedAt.Before(startedBefore) {
			return false
		}
		d, ok := st.devices[*rt.DeviceID]
		return ok && d.Status == domain.DeviceStatusRented && d.InOriginSlot(rt)
	}, byCreatedAt, limit)
}

// Extensions

type extensionRepo struct{ r *repos }

func (x extensionRepo) Create(ctx context.Context, ext *domain.Extension) error {
	return x.r.with(func(st *state) error {
		ext.ID = st.nextID()
		ext.CreatedAt = x.r.store.now()
		st.extensions = append(st.extensions, *ext)
		return nil
	})
}

func (x extensionRepo) ListByRental(ctx context.Context, rentalID uuid.UUID) ([]domain.Extension, error) {
	var out []domain.Extension
	err := x.r.with(func(st *state) error {
		for _, e := range st.extensions {
			if e.RentalID == rentalID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (x extensionRepo) CountByRental(ctx context.Context, rentalID uuid.UUID) (int, error) {
	exts, err := x.ListByRental(ctx, rentalID)
	return len(exts), err
}

// Kiosks

type kioskRepo struct{ r *repos }

func (x kioskRepo) GetByID(ctx context.Context, id int64) (*domain.Kiosk, error) {
	var out *domain.Kiosk
	err := x.r.with(func(st *state) error {
		k, ok := st.kiosks[id]
		if !ok {
			return domain.NewNotFoundError("kiosk %d not found", id)
		}
		kk := *k
		out = &kk
		return nil
	})
	return out, err
}

func (x kioskRepo) GetBySerial(ctx context.Context, serial string) (*domain.Kiosk, error) {
	var out *domain.Kiosk
	err := x.r.with(func(st *state) error {
		for _, k := range st.kiosks {
			if k.Serial == serial {
				kk := *k
				out = &kk
				return nil
			}
		}
		return domain.NewNotFoundError("kiosk %s not found", serial)
	})
	return out, err
}

// Slots

type slotRepo struct{ r *repos }

func (x slotRepo) GetByID(ctx context.Context, id int64) (*domain.Slot, error) {
	var out *domain.Slot
	err := x.r.with(func(st *state) error {
		s, ok := st.slots[id]
		if !ok {
			return domain.NewNotFoundError("slot %d not found", id)
		}
		out = s.Clone()
		return nil
	})
	return out, err
}

func (x slotRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Slot, error) {
	return x.GetByID(ctx, id)
}

func (x slotRepo) GetByNumberForUpdate(ctx context.Context, kioskID int64, slotNumber int) (*domain.Slot, error) {
	var out *domain.Slot
	err := x.r.with(func(st *state) error {
		for _, s := range st.slots {
			if s.KioskID == kioskID && s.SlotNumber == slotNumber {
				out = s.Clone()
				return nil
			}
		}
		return domain.NewNotFoundError("slot %d at kiosk %d not found", slotNumber, kioskID)
	})
	return out, err
}

func (x slotRepo) LockBestCandidate(ctx context.Context, kioskID int64, minBattery int) (*domain.SlotCandidate, error) {
	var out *domain.SlotCandidate
	err := x.r.with(func(st *state) error {
		for _, d := range st.devices {
			if d.Status != domain.DeviceStatusAvailable || d.BatteryLevel < minBattery || d.CurrentSlotID == nil {
				continue
			}
			s, ok := st.slots[*d.CurrentSlotID]
			if !ok || s.KioskID != kioskID || s.Status != domain.SlotStatusAvailable {
				continue
			}
			better := out == nil ||
				d.BatteryLevel > out.BatteryLevel ||
				(d.BatteryLevel == out.BatteryLevel && s.SlotNumber < out.SlotNumber)
			if better {
				out = &domain.SlotCandidate{SlotID: s.ID, SlotNumber: s.SlotNumber, DeviceID: d.ID, BatteryLevel: d.BatteryLevel}
			}
		}
		if out == nil {
			return domain.NewResourceUnavailableError("no charged power bank available at kiosk %d", kioskID)
		}
		return nil
	})
	return out, err
}

func (x slotRepo) Update(ctx context.Context, s *domain.Slot) error {
	return x.r.with(func(st *state) error {
		if _, ok := st.slots[s.ID]; !ok {
			return domain.NewNotFoundError("slot %d not found", s.ID)
		}
		s.UpdatedAt = x.r.store.now()
		st.slots[s.ID] = s.Clone()
		return nil
	})
}

func (x slotRepo) ListOccupiedWithoutLiveRental(ctx context.Context) ([]domain.Slot, error) {
	var out []domain.Slot
	err := x.r.with(func(st *state) error {
		for _, s := range st.slots {
			if s.Status != domain.SlotStatusOccupied {
				continue
			}
			if s.CurrentRentalID != nil {
				if rt, ok := st.rentals[*s.CurrentRentalID]; ok && rt.Status.IsLive() {
					continue
				}
			}
			out = append(out, *s.Clone())
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

// Devices

type deviceRepo struct{ r *repos }

func (x deviceRepo) GetByID(ctx context.Context, id int64) (*domain.Device, error) {
	var out *domain.Device
	err := x.r.with(func(st *state) error {
		d, ok := st.devices[id]
		if !ok {
			return domain.NewNotFoundError("device %d not found", id)
		}
		out = d.Clone()
		return nil
	})
	return out, err
}

func (x deviceRepo) GetBySerial(ctx context.Context, serial string) (*domain.Device, error) {
	var out *domain.Device
	err := x.r.with(func(st *state) error {
		for _, d := range st.devices {
			if d.Serial == serial {
				out = d.Clone()
				return nil
			}
		}
		return domain.NewNotFoundError("device %s not found", serial)
	})
	return out, err
}

func (x deviceRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Device, error) {
	return x.GetByID(ctx, id)
}

func (x deviceRepo) GetInSlot(ctx context.Context, slotID int64) (*domain.Device, error) {
	var out *domain.Device
	err := x.r.with(func(st *state) error {
		for _, d := range st.devices {
			if d.CurrentSlotID != nil && *d.CurrentSlotID == slotID {
				out = d.Clone()
				return nil
			}
		}
		return domain.NewNotFoundError("no device in slot %d", slotID)
	})
	return out, err
}

func (x deviceRepo) Update(ctx context.Context, d *domain.Device) error {
	return x.r.with(func(st *state) error {
		if _, ok := st.devices[d.ID]; !ok {
			return domain.NewNotFoundError("device %d not found", d.ID)
		}
		d.UpdatedAt = x.r.store.now()
		st.devices[d.ID] = d.Clone()
		return nil
	})
}

func (x deviceRepo) ListRentedWithoutLiveRental(ctx context.Context) ([]domain.Device, error) {
	var out []domain.Device
	err := x.r.with(func(st *state) error {
		for _, d := range st.devices {
			if d.Status != domain.DeviceStatusRented {
				continue
			}
			live := false
			for _, rt := range st.rentals {
				if rt.DeviceID != nil && *rt.DeviceID == d.ID && rt.Status.IsLive() {
					live = true
					break
				}
			}
			if !live {
				out = append(out, *d.Clone())
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

// Packages

type packageRepo struct{ r *repos }

func (x packageRepo) GetByID(ctx context.Context, id int64) (*domain.RentalPackage, error) {
	var out *domain.RentalPackage
	err := x.r.with(func(st *state) error {
		p, ok := st.packages[id]
		if !ok {
			return domain.NewNotFoundError("package %d not found", id)
		}
		pp := *p
		out = &pp
		return nil
	})
	return out, err
}

func (x packageRepo) ListActive(ctx context.Context) ([]domain.RentalPackage, error) {
	var out []domain.RentalPackage
	err := x.r.with(func(st *state) error {
		for _, p := range st.packages {
			if p.IsActive {
				out = append(out, *p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

// Payments

type paymentRepo struct{ r *repos }

func (x paymentRepo) Create(ctx context.Context, p *domain.RentalPayment) error {
	return x.r.with(func(st *state) error {
		p.ID = st.nextID()
		p.CreatedAt = x.r.store.now()
		st.payments = append(st.payments, *p)
		return nil
	})
}

func (x paymentRepo) ListByRental(ctx context.Context, rentalID uuid.UUID) ([]domain.RentalPayment, error) {
	var out []domain.RentalPayment
	err := x.r.with(func(st *state) error {
		for _, p := range st.payments {
			if p.RentalID == rentalID {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// Accounts

type accountRepo struct{ r *repos }

func (x accountRepo) GetForUpdate(ctx context.Context, userID int64) (*domain.Account, error) {
	var out *domain.Account
	err := x.r.with(func(st *state) error {
		a, ok := st.accounts[userID]
		if !ok {
			out = &domain.Account{UserID: userID, Points: decimal.Zero, Wallet: decimal.Zero}
			return nil
		}
		aa := *a
		out = &aa
		return nil
	})
	return out, err
}

func (x accountRepo) Adjust(ctx context.Context, userID int64, points, wallet decimal.Decimal) error {
	return x.r.with(func(st *state) error {
		a, ok := st.accounts[userID]
		if !ok {
			a = &domain.Account{UserID: userID, Points: decimal.Zero, Wallet: decimal.Zero}
			st.accounts[userID] = a
		}
		a.Points = a.Points.Add(points)
		a.Wallet = a.Wallet.Add(wallet)
		return nil
	})
}

func (x accountRepo) CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	return x.r.with(func(st *state) error {
		if tx.ID == uuid.Nil {
			tx.ID = uuid.New()
		}
		tx.CreatedAt = x.r.store.now()
		t := *tx
		st.transactions[tx.ID] = &t
		return nil
	})
}

func (x accountRepo) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.LedgerTransaction, error) {
	var out *domain.LedgerTransaction
	err := x.r.with(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return domain.NewNotFoundError("transaction %s not found", id)
		}
		tt := *t
		out = &tt
		return nil
	})
	return out, err
}

func (x accountRepo) AddRefunded(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return x.r.with(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return domain.NewNotFoundError("transaction %s not found", id)
		}
		t.RefundedAmount = t.RefundedAmount.Add(amount)
		return nil
	})
}

// Fee configurations

type feeConfigRepo struct{ r *repos }

func (x feeConfigRepo) GetActive(ctx context.Context) (*domain.FeeConfiguration, error) {
	var out *domain.FeeConfiguration
	err := x.r.with(func(st *state) error {
		for _, c := range st.feeConfigs {
			if c.IsActive {
				cc := c
				out = &cc
				return nil
			}
		}
		return domain.NewNotFoundError("no active fee configuration")
	})
	return out, err
}

// App config

type appConfigRepo struct{ r *repos }

func (x appConfigRepo) Get(ctx context.Context, key string) (string, error) {
	var out string
	err := x.r.with(func(st *state) error {
		v, ok := st.appConfig[key]
		if !ok {
			return domain.NewNotFoundError("config key %s not found", key)
		}
		out = v
		return nil
	})
	return out, err
}

func (x appConfigRepo) Set(ctx context.Context, key, value string) error {
	return x.r.with(func(st *state) error {
		st.appConfig[key] = value
		return nil
	})
}

// Notifications

type notificationRepo struct{ r *repos }

func (x notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	return x.r.with(func(st *state) error {
		n.ID = st.nextID()
		n.CreatedAt = x.r.store.now()
		st.notifications = append(st.notifications, *n)
		return nil
	})
}

func (x notificationRepo) List(ctx context.Context, userID int64, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error) {
	var out []domain.Notification
	var total int32
	err := x.r.with(func(st *state) error {
		var mine []domain.Notification
		for i := len(st.notifications) - 1; i >= 0; i-- {
			n := st.notifications[i]
			if n.UserID == userID && (!unreadOnly || !n.IsRead) {
				mine = append(mine, n)
			}
		}
		total = int32(len(mine))
		start := (page - 1) * pageSize
		if start < 0 || start >= total {
			return nil
		}
		end := min(start+pageSize, total)
		out = append(out, mine[start:end]...)
		return nil
	})
	return out, total, err
}

func (x notificationRepo) MarkAsRead(ctx context.Context, id, userID int64) error {
	return x.r.with(func(st *state) error {
		for i := range st.notifications {
			if st.notifications[i].ID == id && st.notifications[i].UserID == userID {
				st.notifications[i].IsRead = true
				return nil
			}
		}
		return domain.NewNotFoundError("notification %d not found", id)
	})
}
