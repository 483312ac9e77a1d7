package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dominikschweigl/ticketless-park-system/internal/barrier"
	"github.com/dominikschweigl/ticketless-park-system/internal/booking"
	"github.com/dominikschweigl/ticketless-park-system/internal/cloud"
	"github.com/dominikschweigl/ticketless-park-system/internal/ledger"
	"github.com/dominikschweigl/ticketless-park-system/internal/model"
	"github.com/dominikschweigl/ticketless-park-system/internal/notify"
	"github.com/dominikschweigl/ticketless-park-system/internal/tracker"
)

// fakeCloud scripts the billing/occupancy service.
type fakeCloud struct {
	mu       sync.Mutex
	paid     map[string]bool
	checkErr error
	entries  []string
	exits    []string
	pushes   []int
	pushErr  error
}

func (f *fakeCloud) Health(ctx context.Context) bool { return true }
func (f *fakeCloud) RegisterLot(ctx context.Context, facilityID string, maxCapacity int, lat, lng float64) error {
	return nil
}
func (f *fakeCloud) DeregisterLot(ctx context.Context, facilityID string) error { return nil }

func (f *fakeCloud) PushOccupancy(ctx context.Context, facilityID string, occupancy int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, occupancy)
	return nil
}

func (f *fakeCloud) RecordEntry(ctx context.Context, plate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, plate)
	return nil
}

func (f *fakeCloud) CheckPayment(ctx context.Context, plate string) (cloud.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return cloud.PaymentStatus{}, f.checkErr
	}
	return cloud.PaymentStatus{LicensePlate: plate, Paid: f.paid[plate], PriceCents: 450}, nil
}

func (f *fakeCloud) Pay(ctx context.Context, plate string) (cloud.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paid == nil {
		f.paid = make(map[string]bool)
	}
	f.paid[plate] = true
	return cloud.PaymentStatus{LicensePlate: plate, Paid: true}, nil
}

func (f *fakeCloud) RecordExit(ctx context.Context, plate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits = append(f.exits, plate)
	return nil
}

// fakeActuator records which barriers were commanded.
type fakeActuator struct {
	mu     sync.Mutex
	result barrier.Result
	opened []string
}

func (f *fakeActuator) Open(ctx context.Context, barrierID string) barrier.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, barrierID)
	return f.result
}

// alertRecorder captures dispatched alerts.
type alertRecorder struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (a *alertRecorder) Dispatch(alert notify.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
}

type fixture struct {
	orch     *Orchestrator
	ledger   ledger.Store
	bookings *booking.Reconciler
	tracker  *tracker.OccupancyTracker
	cloud    *fakeCloud
	actuator *fakeActuator
	alerts   *alertRecorder
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ParkingSession{}))

	fc := &fakeCloud{paid: make(map[string]bool)}
	store := ledger.NewGormStore(db, "lot-01")
	tr := tracker.New(fc, "lot-01", 10, 0, 0)
	bookings := booking.NewReconciler(tr)
	actuator := &fakeActuator{result: barrier.Opened}
	alerts := &alertRecorder{}

	return &fixture{
		orch:     New(store, bookings, tr, fc, actuator, alerts, true),
		ledger:   store,
		bookings: bookings,
		tracker:  tr,
		cloud:    fc,
		actuator: actuator,
		alerts:   alerts,
	}
}

func TestEntry_NewPlate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})

	assert.Equal(t, barrier.Opened, result)
	assert.Equal(t, []string{"entry_0"}, f.actuator.opened)

	session, err := f.ledger.GetActiveSession(ctx, "ABC-1")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, 1, f.tracker.Snapshot().Occupancy)
	assert.Equal(t, []string{"ABC-1"}, f.cloud.entries)
}

func TestEntry_DuplicateEventIsReentry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})
	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})

	assert.Equal(t, barrier.Opened, result, "re-entry still opens the barrier")

	sessions, err := f.ledger.SessionsForPlate(ctx, "ABC-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1, "duplicate entry event must not create a second session")

	assert.Equal(t, 1, f.tracker.Snapshot().Occupancy, "occupancy unchanged on re-entry")
	assert.Len(t, f.cloud.entries, 1, "cloud entry record not repeated on re-entry")
}

func TestEntry_BookedPlateConsumesBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.HandleBookingAction(ctx, "XYZ-9", "book")
	assert.Equal(t, 1, f.tracker.Snapshot().Occupancy, "booking pre-allocates occupancy")

	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "XYZ-9"})

	assert.Equal(t, barrier.Opened, result)
	assert.False(t, f.bookings.Has("XYZ-9"), "booking consumed on physical entry")
	assert.Equal(t, 1, f.tracker.Snapshot().Occupancy, "entry after booking must not double-count")

	session, err := f.ledger.GetActiveSession(ctx, "XYZ-9")
	require.NoError(t, err)
	require.NotNil(t, session)
}

func TestExit_PaidPlate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})
	f.cloud.paid["ABC-1"] = true

	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "exit", BarrierID: "exit_0", Plate: "ABC-1"})

	assert.Equal(t, barrier.Opened, result)
	assert.Equal(t, []string{"entry_0", "exit_0"}, f.actuator.opened)

	session, err := f.ledger.GetActiveSession(ctx, "ABC-1")
	require.NoError(t, err)
	assert.Nil(t, session, "session completed on exit")

	assert.Equal(t, 0, f.tracker.Snapshot().Occupancy)
	assert.Equal(t, []string{"ABC-1"}, f.cloud.exits, "remote payment record cleared")
}

func TestExit_UnpaidPlateIsDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})

	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "exit", BarrierID: "exit_0", Plate: "ABC-1"})

	assert.Equal(t, barrier.Denied, result)
	assert.Equal(t, []string{"entry_0"}, f.actuator.opened, "barrier must not be commanded for an unpaid exit")

	session, err := f.ledger.GetActiveSession(ctx, "ABC-1")
	require.NoError(t, err)
	assert.NotNil(t, session, "ledger unchanged on denied exit")
	assert.Equal(t, 1, f.tracker.Snapshot().Occupancy)

	require.Len(t, f.alerts.alerts, 1)
	assert.Equal(t, "exit_denied", f.alerts.alerts[0].Kind)
}

func TestExit_PaymentCheckFailureTreatedAsUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})
	f.cloud.checkErr = fmt.Errorf("cloud unreachable")

	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "exit", BarrierID: "exit_0", Plate: "ABC-1"})

	assert.Equal(t, barrier.Denied, result)
	session, err := f.ledger.GetActiveSession(ctx, "ABC-1")
	require.NoError(t, err)
	assert.NotNil(t, session)
}

func TestExit_WithoutEntryFailsOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cloud.paid["GHOST"] = true

	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "exit", BarrierID: "exit_0", Plate: "GHOST"})

	assert.Equal(t, barrier.Opened, result, "fail-open: barrier opens despite the missing session")
	assert.Equal(t, 0, f.tracker.Snapshot().Occupancy, "nothing to decrement")

	require.Len(t, f.alerts.alerts, 1)
	assert.Equal(t, "exit_without_entry", f.alerts.alerts[0].Kind)
}

func TestExit_WithoutEntryFailClosedWhenConfigured(t *testing.T) {
	f := newFixture(t)
	f.orch.failOpenExit = false
	ctx := context.Background()
	f.cloud.paid["GHOST"] = true

	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "exit", BarrierID: "exit_0", Plate: "GHOST"})

	assert.Equal(t, barrier.Denied, result)
	assert.Empty(t, f.actuator.opened)
}

func TestSimulatedBarrierTreatedAsOpened(t *testing.T) {
	f := newFixture(t)
	f.actuator.result = barrier.Simulated
	ctx := context.Background()

	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})

	assert.Equal(t, barrier.Simulated, result)
	assert.True(t, result.Succeeded())

	session, err := f.ledger.GetActiveSession(ctx, "ABC-1")
	require.NoError(t, err)
	assert.NotNil(t, session, "state advances exactly as with a confirmed open")
}

func TestBarrierTimeoutRaisesAlert(t *testing.T) {
	f := newFixture(t)
	f.actuator.result = barrier.TimedOut
	ctx := context.Background()

	result := f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})

	assert.Equal(t, barrier.TimedOut, result)
	require.Len(t, f.alerts.alerts, 1)
	assert.Equal(t, "barrier_timeout", f.alerts.alerts[0].Kind)
	assert.Equal(t, "entry_0", f.alerts.alerts[0].BarrierID)
}

func TestEmptyPlateIgnored(t *testing.T) {
	f := newFixture(t)

	result := f.orch.HandleEvent(context.Background(), Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: ""})

	assert.Equal(t, barrier.Denied, result)
	assert.Empty(t, f.actuator.opened)
	assert.Equal(t, 0, f.tracker.Snapshot().Occupancy)
}

func TestUnknownCheckpointIgnored(t *testing.T) {
	f := newFixture(t)

	result := f.orch.HandleEvent(context.Background(), Event{Checkpoint: "sideways", BarrierID: "entry_0", Plate: "ABC-1"})

	assert.Equal(t, barrier.Denied, result)
	assert.Empty(t, f.actuator.opened)
}

func TestUnknownBookingActionIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.HandleBookingAction(ctx, "ABC-1", "teleport")
	f.orch.HandleBookingAction(ctx, "", "book")

	assert.Equal(t, 0, f.bookings.Count())
	assert.Equal(t, 0, f.tracker.Snapshot().Occupancy)
}

func TestCancelWithoutBookingKeepsOccupancy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})
	f.orch.HandleBookingAction(ctx, "ABC-1", "cancel")

	assert.Equal(t, 1, f.tracker.Snapshot().Occupancy, "cancel without a booking must not decrement")
}

// Rapid duplicate recognitions for one plate must serialize: exactly one
// session row regardless of interleaving.
func TestConcurrentDuplicateEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: "ABC-1"})
		}()
	}
	wg.Wait()

	sessions, err := f.ledger.SessionsForPlate(ctx, "ABC-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Equal(t, 1, f.tracker.Snapshot().Occupancy)
}

func TestConcurrentDistinctPlates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			plate := fmt.Sprintf("CAR-%d", n)
			f.orch.HandleEvent(ctx, Event{Checkpoint: "entry", BarrierID: "entry_0", Plate: plate})
		}(i)
	}
	wg.Wait()

	active, err := f.ledger.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 5)
	assert.Equal(t, 5, f.tracker.Snapshot().Occupancy)
}
