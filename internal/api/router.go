package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/dominikschweigl/ticketless-park-system/config"
	"github.com/dominikschweigl/ticketless-park-system/internal/ledger"
	"github.com/dominikschweigl/ticketless-park-system/internal/mw"
	"github.com/dominikschweigl/ticketless-park-system/internal/tracker"
)

// NewRouter creates and configures the diagnostics API router.
func NewRouter(cfg *config.ServerConfig, store ledger.Store, occupancy *tracker.OccupancyTracker, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(store, occupancy, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	r.GET("/healthz", handler.Healthz)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/status", caching, handler.GetStatus)
		api.GET("/sessions", handler.GetSessions)
		api.GET("/sessions/:plate", handler.GetSessionsForPlate)

		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	return r
}
