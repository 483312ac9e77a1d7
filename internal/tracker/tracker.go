package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/dominikschweigl/ticketless-park-system/internal/cloud"
)

// OccupancyTracker keeps the facility's last-known-pushed occupancy and
// mirrors every change to the cloud, best-effort. The cloud is the source of
// truth; this cache only exists so the edge can keep counting while the
// cloud is unreachable.
type OccupancyTracker struct {
	client      cloud.Client
	facilityID  string
	maxCapacity int
	lat         float64
	lng         float64

	mu         sync.Mutex
	occupancy  int
	registered bool
}

// Snapshot is a point-in-time view of the tracker for the diagnostics API.
type Snapshot struct {
	FacilityID      string `json:"facilityId"`
	MaxCapacity     int    `json:"maxCapacity"`
	Occupancy       int    `json:"currentOccupancy"`
	AvailableSpaces int    `json:"availableSpaces"`
	Registered      bool   `json:"registered"`
}

// New creates an occupancy tracker for one facility.
func New(client cloud.Client, facilityID string, maxCapacity int, lat, lng float64) *OccupancyTracker {
	return &OccupancyTracker{
		client:      client,
		facilityID:  facilityID,
		maxCapacity: maxCapacity,
		lat:         lat,
		lng:         lng,
	}
}

// Register announces the facility to the cloud. Idempotent.
func (t *OccupancyTracker) Register(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.registered {
		return nil
	}
	if err := t.client.RegisterLot(ctx, t.facilityID, t.maxCapacity, t.lat, t.lng); err != nil {
		return fmt.Errorf("lot registration failed: %w", err)
	}
	t.registered = true
	log.Printf("[CLOUD] registered parking lot %s capacity=%d", t.facilityID, t.maxCapacity)
	return nil
}

// Deregister removes the facility from the cloud registry. Called at
// shutdown, best-effort.
func (t *OccupancyTracker) Deregister(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.registered {
		return nil
	}
	if err := t.client.DeregisterLot(ctx, t.facilityID); err != nil {
		return fmt.Errorf("lot deregistration failed: %w", err)
	}
	t.registered = false
	log.Printf("[CLOUD] deregistered parking lot %s", t.facilityID)
	return nil
}

// Increment records one car entering and pushes the new value.
func (t *OccupancyTracker) Increment(ctx context.Context) {
	t.set(ctx, func(cur int) int { return cur + 1 })
}

// Decrement records one car leaving and pushes the new value.
func (t *OccupancyTracker) Decrement(ctx context.Context) {
	t.set(ctx, func(cur int) int { return cur - 1 })
}

// set applies an occupancy change, clamps it to [0, maxCapacity] and pushes
// the result to the cloud. A failed push is logged; the local value still
// advances so the next successful push reconciles.
func (t *OccupancyTracker) set(ctx context.Context, change func(int) int) {
	t.mu.Lock()
	next := change(t.occupancy)
	if next < 0 {
		log.Printf("[CLOUD] invalid occupancy %d for %s, clamping to 0", next, t.facilityID)
		next = 0
	} else if next > t.maxCapacity {
		log.Printf("[CLOUD] occupancy %d exceeds capacity %d for %s, clamping", next, t.maxCapacity, t.facilityID)
		next = t.maxCapacity
	}
	if next != t.occupancy {
		log.Printf("[CLOUD] occupancy %s: %d -> %d", t.facilityID, t.occupancy, next)
	}
	t.occupancy = next
	t.mu.Unlock()

	if err := t.client.PushOccupancy(ctx, t.facilityID, next); err != nil {
		log.Printf("[CLOUD] occupancy push failed for %s: %v", t.facilityID, err)
	}
}

// Snapshot returns the current local view.
func (t *OccupancyTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	available := t.maxCapacity - t.occupancy
	if available < 0 {
		available = 0
	}
	return Snapshot{
		FacilityID:      t.facilityID,
		MaxCapacity:     t.maxCapacity,
		Occupancy:       t.occupancy,
		AvailableSpaces: available,
		Registered:      t.registered,
	}
}
