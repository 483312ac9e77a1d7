package booking

import (
	"context"
	"log"
	"sync"

	"github.com/dominikschweigl/ticketless-park-system/internal/tracker"
)

// Reconciler tracks reservations made before physical arrival. A reserved
// plate already counts towards remote occupancy, so the physical entry must
// consume the booking instead of incrementing again.
//
// Owned exclusively by one facility; all access goes through these methods.
type Reconciler struct {
	tracker *tracker.OccupancyTracker

	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewReconciler creates an empty booking reconciler bound to the facility's
// occupancy tracker.
func NewReconciler(t *tracker.OccupancyTracker) *Reconciler {
	return &Reconciler{
		tracker:  t,
		reserved: make(map[string]struct{}),
	}
}

// Has reports whether the plate holds an unconsumed booking.
func (r *Reconciler) Has(plate string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.reserved[plate]
	return ok
}

// Add records a booking and increments remote occupancy once. Repeated calls
// for an already-reserved plate do not double-increment.
func (r *Reconciler) Add(ctx context.Context, plate string) {
	r.mu.Lock()
	if _, ok := r.reserved[plate]; ok {
		r.mu.Unlock()
		log.Printf("[BOOKING] plate=%s already reserved, ignoring duplicate booking", plate)
		return
	}
	r.reserved[plate] = struct{}{}
	r.mu.Unlock()

	log.Printf("[BOOKING] reserved plate=%s", plate)
	r.tracker.Increment(ctx)
}

// Consume removes the booking without touching occupancy: the increment
// already happened when the booking was made. Consuming an absent booking
// is a no-op.
func (r *Reconciler) Consume(plate string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reserved[plate]; !ok {
		log.Printf("[BOOKING] no booking to consume for plate=%s", plate)
		return
	}
	delete(r.reserved, plate)
	log.Printf("[BOOKING] consumed booking for plate=%s", plate)
}

// Cancel releases an unconsumed booking and decrements remote occupancy.
// Cancelling a booking that was never made is a no-op and must never
// decrement.
func (r *Reconciler) Cancel(ctx context.Context, plate string) {
	r.mu.Lock()
	if _, ok := r.reserved[plate]; !ok {
		r.mu.Unlock()
		log.Printf("[BOOKING] no booking to cancel for plate=%s", plate)
		return
	}
	delete(r.reserved, plate)
	r.mu.Unlock()

	log.Printf("[BOOKING] cancelled booking for plate=%s", plate)
	r.tracker.Decrement(ctx)
}

// Count returns the number of unconsumed bookings.
func (r *Reconciler) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reserved)
}
