package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/ledger"
	"chargeshare-backend/internal/repository"
	"chargeshare-backend/internal/repository/memory"
	"chargeshare-backend/internal/service"
	"chargeshare-backend/internal/settings"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type firedEvent struct {
	userID  int64
	kind    domain.EventKind
	payload map[string]string
}

type recordingHook struct {
	mu     sync.Mutex
	events []firedEvent
}

func (h *recordingHook) Fire(_ context.Context, userID int64, kind domain.EventKind, payload map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, firedEvent{userID: userID, kind: kind, payload: payload})
}

func (h *recordingHook) count(kind domain.EventKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Settle(ctx context.Context, req domain.SettleRequest) (*domain.SettleResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SettleResult), args.Error(1)
}

func (m *MockLedger) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	args := m.Called(ctx, transactionID, amount)
	return args.Error(0)
}

func (m *MockLedger) Award(ctx context.Context, userID int64, points decimal.Decimal, reference string) (string, error) {
	args := m.Called(ctx, userID, points, reference)
	return args.String(0), args.Error(1)
}

// flakyLedger fails refunds while refundErr is set.
type flakyLedger struct {
	*ledger.Gateway
	mu        sync.Mutex
	refundErr error
}

func (f *flakyLedger) setRefundErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundErr = err
}

func (f *flakyLedger) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	f.mu.Lock()
	err := f.refundErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Gateway.Refund(ctx, transactionID, amount)
}

type fixture struct {
	ctx       context.Context
	store     *memory.Store
	clock     *fakeClock
	hook      *recordingHook
	lifecycle *service.Lifecycle
	events    *service.KioskEventService
	alloc     *service.ResourceAllocator

	kiosk     *domain.Kiosk
	slots     []*domain.Slot
	devices   []*domain.Device
	prepaid   *domain.RentalPackage
	postpaid  *domain.RentalPackage
	extension *domain.RentalPackage
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	batteries []int
	empty     int
	opts      service.Options
	ledger    func(store *memory.Store) service.LedgerGateway
	wrap      func(store repository.Store) repository.Store
}

func withBatteries(levels ...int) fixtureOption {
	return func(c *fixtureConfig) { c.batteries = levels }
}

func withLedger(fn func(store *memory.Store) service.LedgerGateway) fixtureOption {
	return func(c *fixtureConfig) { c.ledger = fn }
}

// withStore puts wrap between the lifecycle and the memory store.
func withStore(wrap func(store repository.Store) repository.Store) fixtureOption {
	return func(c *fixtureConfig) { c.wrap = wrap }
}

func withOptions(fn func(o *service.Options)) fixtureOption {
	return func(c *fixtureConfig) { fn(&c.opts) }
}

// newFixture builds one online kiosk. Slots holding devices come first, in
// the order of the battery levels given, followed by two empty slots.
// Prepaid costs 1.00 per minute, postpaid 0.50 per minute.
func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()
	clock := &fakeClock{now: t0}
	cfg := fixtureConfig{
		batteries: []int{95, 80, 10},
		empty:     2,
		opts: service.Options{
			MaxExtensions:      2,
			AbandonmentPenalty: decimal.NewFromInt(10),
			CompletionBonus:    decimal.NewFromInt(5),
			MaxConflictRetries: 2,
			RetryBase:          time.Millisecond,
		},
		ledger: func(store *memory.Store) service.LedgerGateway { return ledger.NewGateway(store) },
	}
	for _, o := range options {
		o(&cfg)
	}
	cfg.opts.Now = clock.Now

	store := memory.NewStore()
	store.SetClock(clock.Now)

	f := &fixture{ctx: context.Background(), store: store, clock: clock, hook: &recordingHook{}}
	f.kiosk = store.AddKiosk(domain.Kiosk{Serial: "KIOSK-T1", Name: "Test kiosk"})
	n := 0
	for i, level := range cfg.batteries {
		n++
		sl := store.AddSlot(domain.Slot{KioskID: f.kiosk.ID, SlotNumber: n})
		f.slots = append(f.slots, sl)
		f.devices = append(f.devices, store.AddDevice(domain.Device{
			Serial:       "PB-T" + string(rune('A'+i)),
			BatteryLevel: level,
		}, sl))
	}
	for i := 0; i < cfg.empty; i++ {
		n++
		f.slots = append(f.slots, store.AddSlot(domain.Slot{KioskID: f.kiosk.ID, SlotNumber: n}))
	}

	f.prepaid = store.AddPackage(domain.RentalPackage{Name: "1h", DurationMinutes: 60, Price: decimal.NewFromInt(60),
		PaymentModel: domain.PaymentModelPrepaid, IsActive: true})
	f.postpaid = store.AddPackage(domain.RentalPackage{Name: "payg", DurationMinutes: 60, Price: decimal.NewFromInt(30),
		PaymentModel: domain.PaymentModelPostpaid, IsActive: true})
	f.extension = store.AddPackage(domain.RentalPackage{Name: "+30m", DurationMinutes: 30, Price: decimal.NewFromInt(20),
		PaymentModel: domain.PaymentModelPrepaid, IsActive: true})

	cfgStore := settings.NewStore(store.FeeConfigs(), store.AppConfig(), settings.NewLocalCache(time.Minute), 0)
	f.alloc = service.NewResourceAllocator()
	var lcStore repository.Store = store
	if cfg.wrap != nil {
		lcStore = cfg.wrap(store)
	}
	f.lifecycle = service.NewLifecycle(lcStore, f.alloc, cfg.ledger(store), f.hook, cfgStore, cfg.opts)
	f.events = service.NewKioskEventService(store, f.alloc, f.lifecycle)
	return f
}

func (f *fixture) credit(userID int64, points, wallet int64) {
	f.store.Credit(userID, decimal.NewFromInt(points), decimal.NewFromInt(wallet))
}

func (f *fixture) balance(t *testing.T, userID int64) (string, string) {
	t.Helper()
	acct, err := f.store.Accounts().GetForUpdate(f.ctx, userID)
	require.NoError(t, err)
	return acct.Points.StringFixed(2), acct.Wallet.StringFixed(2)
}

func (f *fixture) rental(t *testing.T, id uuid.UUID) *domain.Rental {
	t.Helper()
	r, err := f.store.Rentals().GetByID(f.ctx, id)
	require.NoError(t, err)
	return r
}

func (f *fixture) slot(t *testing.T, id int64) *domain.Slot {
	t.Helper()
	s, err := f.store.Slots().GetByID(f.ctx, id)
	require.NoError(t, err)
	return s
}

func (f *fixture) device(t *testing.T, id int64) *domain.Device {
	t.Helper()
	d, err := f.store.Devices().GetByID(f.ctx, id)
	require.NoError(t, err)
	return d
}

func (f *fixture) payments(t *testing.T, rentalID uuid.UUID, kind domain.PaymentKind) []domain.RentalPayment {
	t.Helper()
	all, err := f.store.Payments().ListByRental(f.ctx, rentalID)
	require.NoError(t, err)
	var out []domain.RentalPayment
	for _, p := range all {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// dock reports the rental's device seated at the given slot.
func (f *fixture) dock(t *testing.T, r *domain.Rental, slot *domain.Slot, battery int) {
	t.Helper()
	d := f.device(t, *r.DeviceID)
	require.NoError(t, f.events.HandleDocked(f.ctx, f.kiosk.Serial, slot.SlotNumber, d.Serial, battery))
}

// stuckPending leaves a reserved PENDING rental behind, as a start whose
// payment never resolved would.
func (f *fixture) stuckPending(t *testing.T, userID int64) *domain.Rental {
	t.Helper()
	var out *domain.Rental
	err := f.store.WithinTx(f.ctx, func(ctx context.Context, tx repository.Repositories) error {
		id := uuid.New()
		c, err := f.alloc.Reserve(ctx, tx, f.kiosk.ID, id, 20)
		if err != nil {
			return err
		}
		deviceID := c.DeviceID
		r := &domain.Rental{
			ID:             id,
			Code:           "STUCK" + id.String()[:3],
			UserID:         userID,
			OriginKioskID:  f.kiosk.ID,
			OriginSlotID:   c.SlotID,
			DeviceID:       &deviceID,
			PackageID:      f.prepaid.ID,
			PaymentModel:   domain.PaymentModelPrepaid,
			PackagePrice:   f.prepaid.Price,
			PackageMinutes: f.prepaid.DurationMinutes,
			Status:         domain.RentalStatusPending,
			PaymentStatus:  domain.PaymentStatusNone,
			DueAt:          f.clock.Now().Add(time.Hour),
		}
		if err := tx.Rentals().Create(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	require.NoError(t, err)
	return out
}

// statusLog records the rental status written by every Create and Update made
// inside a transaction.
type statusLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *statusLog) add(op string, status domain.RentalStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, op+" "+string(status))
}

func (l *statusLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type loggingStore struct {
	repository.Store
	log *statusLog
}

func (s loggingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return fn(ctx, loggingTx{Repositories: tx, log: s.log})
	})
}

type loggingTx struct {
	repository.Repositories
	log *statusLog
}

func (tx loggingTx) Rentals() repository.RentalRepository {
	return loggingRentals{RentalRepository: tx.Repositories.Rentals(), log: tx.log}
}

type loggingRentals struct {
	repository.RentalRepository
	log *statusLog
}

func (r loggingRentals) Create(ctx context.Context, rt *domain.Rental) error {
	r.log.add("create", rt.Status)
	return r.RentalRepository.Create(ctx, rt)
}

func (r loggingRentals) Update(ctx context.Context, rt *domain.Rental) error {
	r.log.add("update", rt.Status)
	return r.RentalRepository.Update(ctx, rt)
}
