package orchestrator

import (
	"context"
	"log"

	"github.com/dominikschweigl/ticketless-park-system/internal/barrier"
	"github.com/dominikschweigl/ticketless-park-system/internal/booking"
	"github.com/dominikschweigl/ticketless-park-system/internal/cloud"
	"github.com/dominikschweigl/ticketless-park-system/internal/ledger"
	"github.com/dominikschweigl/ticketless-park-system/internal/notify"
	"github.com/dominikschweigl/ticketless-park-system/internal/tracker"
)

// Checkpoint types delivered by the recognizer.
const (
	CheckpointEntry = "entry"
	CheckpointExit  = "exit"
)

// Event is one recognized-plate event from a checkpoint camera.
type Event struct {
	Checkpoint string  `json:"checkpointType"`
	BarrierID  string  `json:"barrierId"`
	Plate      string  `json:"plate"`
	Confidence float64 `json:"confidence"`
}

// Alerter pages operators about anomalies. Satisfied by *notify.WorkerPool.
type Alerter interface {
	Dispatch(alert notify.Alert)
}

// Orchestrator reconciles recognized-plate events against the session
// ledger, booking reconciler, occupancy tracker and cloud billing service,
// then drives the barrier. The ledger and bookings are the only state kept
// consistent synchronously; every cloud call is best-effort because traffic
// at the barrier cannot wait on a remote system.
type Orchestrator struct {
	ledger   ledger.Store
	bookings *booking.Reconciler
	tracker  *tracker.OccupancyTracker
	cloud    cloud.Client
	actuator barrier.Actuator
	alerts   Alerter

	failOpenExit bool
	locks        *plateLocks
}

// New wires an orchestrator for one facility. alerts may be nil.
func New(
	store ledger.Store,
	bookings *booking.Reconciler,
	occupancy *tracker.OccupancyTracker,
	cloudClient cloud.Client,
	actuator barrier.Actuator,
	alerts Alerter,
	failOpenExit bool,
) *Orchestrator {
	return &Orchestrator{
		ledger:       store,
		bookings:     bookings,
		tracker:      occupancy,
		cloud:        cloudClient,
		actuator:     actuator,
		alerts:       alerts,
		failOpenExit: failOpenExit,
		locks:        newPlateLocks(),
	}
}

// HandleEvent runs one checkpoint event through the state machine. Events
// for the same plate are serialized; unrelated plates run in parallel. The
// returned result is barrier.Denied when the barrier was never commanded
// (unpaid exit, malformed event).
func (o *Orchestrator) HandleEvent(ctx context.Context, ev Event) barrier.Result {
	if ev.Plate == "" {
		log.Printf("[LOGIC] empty plate from barrier=%s, ignoring", ev.BarrierID)
		return barrier.Denied
	}

	l := o.locks.acquire(ev.Plate)
	defer o.locks.release(ev.Plate, l)

	switch ev.Checkpoint {
	case CheckpointEntry:
		return o.handleEntry(ctx, ev)
	case CheckpointExit:
		return o.handleExit(ctx, ev)
	default:
		log.Printf("[LOGIC] unknown checkpoint type %q (barrier=%s plate=%s), ignoring", ev.Checkpoint, ev.BarrierID, ev.Plate)
		return barrier.Denied
	}
}

func (o *Orchestrator) handleEntry(ctx context.Context, ev Event) barrier.Result {
	active, err := o.ledger.GetActiveSession(ctx, ev.Plate)
	if err != nil {
		log.Printf("[LOGIC][ENTRY] ledger lookup failed for plate=%s: %v", ev.Plate, err)
	}
	if active != nil {
		// Duplicate recognition of a car already inside: open the barrier,
		// touch nothing else.
		log.Printf("[LOGIC][ENTRY] plate=%s already inside since %s, re-entry, opening anyway", ev.Plate, active.EntryTime)
		return o.openBarrier(ctx, ev)
	}

	log.Printf("[LOGIC][ENTRY] plate=%s entering, creating session", ev.Plate)
	if err := o.ledger.RegisterEntry(ctx, ev.Plate); err != nil {
		log.Printf("[LOGIC][ENTRY] failed to register entry for plate=%s: %v", ev.Plate, err)
	}

	if err := o.cloud.RecordEntry(ctx, ev.Plate); err != nil {
		log.Printf("[CLOUD][PAYMENT] enter record failed for plate=%s: %v", ev.Plate, err)
	}

	if o.bookings.Has(ev.Plate) {
		// Occupancy was already counted when the booking was made.
		o.bookings.Consume(ev.Plate)
	} else {
		o.tracker.Increment(ctx)
	}

	return o.openBarrier(ctx, ev)
}

func (o *Orchestrator) handleExit(ctx context.Context, ev Event) barrier.Result {
	status, err := o.cloud.CheckPayment(ctx, ev.Plate)
	if err != nil {
		// An unreachable billing service cannot confirm payment; the only
		// safe reading is unpaid.
		log.Printf("[CLOUD][PAYMENT] check failed for plate=%s, treating as unpaid: %v", ev.Plate, err)
		status = cloud.PaymentStatus{Paid: false}
	}

	if !status.Paid {
		log.Printf("[LOGIC][EXIT] plate=%s not paid (due %d cents), denying exit", ev.Plate, status.PriceCents)
		o.alert(notify.Alert{Kind: "exit_denied", Plate: ev.Plate, BarrierID: ev.BarrierID})
		return barrier.Denied
	}

	active, err := o.ledger.GetActiveSession(ctx, ev.Plate)
	if err != nil {
		log.Printf("[LOGIC][EXIT] ledger lookup failed for plate=%s: %v", ev.Plate, err)
	}
	if active == nil {
		log.Printf("[LOGIC][EXIT] plate=%s has no active session", ev.Plate)
		o.alert(notify.Alert{Kind: "exit_without_entry", Plate: ev.Plate, BarrierID: ev.BarrierID})
		if !o.failOpenExit {
			return barrier.Denied
		}
		// Fail-open: the car is physically at the barrier; blocking it is
		// worse than the missing ledger row. Nothing to complete, nothing
		// to decrement.
		return o.openBarrier(ctx, ev)
	}

	log.Printf("[LOGIC][EXIT] plate=%s exiting, completing session %d", ev.Plate, active.ID)
	completed, err := o.ledger.CompleteExit(ctx, ev.Plate)
	if err != nil {
		log.Printf("[LOGIC][EXIT] failed to complete session for plate=%s: %v", ev.Plate, err)
	}
	if completed {
		o.tracker.Decrement(ctx)
	}

	if err := o.cloud.RecordExit(ctx, ev.Plate); err != nil {
		log.Printf("[CLOUD][PAYMENT] exit record cleanup failed for plate=%s: %v", ev.Plate, err)
	}

	return o.openBarrier(ctx, ev)
}

// HandleBookingAction applies one booking feed event. Unknown actions are
// logged and ignored.
func (o *Orchestrator) HandleBookingAction(ctx context.Context, plate, action string) {
	if plate == "" {
		log.Printf("[BOOKING] missing plate for action=%q, ignoring", action)
		return
	}
	switch action {
	case "book":
		o.bookings.Add(ctx, plate)
	case "cancel":
		o.bookings.Cancel(ctx, plate)
	default:
		log.Printf("[BOOKING] unknown action=%q plate=%s, ignoring", action, plate)
	}
}

func (o *Orchestrator) openBarrier(ctx context.Context, ev Event) barrier.Result {
	result := o.actuator.Open(ctx, ev.BarrierID)
	if result == barrier.TimedOut {
		o.alert(notify.Alert{Kind: "barrier_timeout", Plate: ev.Plate, BarrierID: ev.BarrierID})
	}
	return result
}

func (o *Orchestrator) alert(alert notify.Alert) {
	if o.alerts != nil {
		o.alerts.Dispatch(alert)
	}
}
