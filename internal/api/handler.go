package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"github.com/dominikschweigl/ticketless-park-system/internal/ledger"
	"github.com/dominikschweigl/ticketless-park-system/internal/tracker"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	ledger  ledger.Store
	tracker *tracker.OccupancyTracker
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(store ledger.Store, occupancy *tracker.OccupancyTracker, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		ledger:  store,
		tracker: occupancy,
		webpush: webpushOptions,
	}
}
