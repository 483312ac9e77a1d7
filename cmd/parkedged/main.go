package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/nats-io/nats.go"

	"github.com/dominikschweigl/ticketless-park-system/config"
	"github.com/dominikschweigl/ticketless-park-system/internal/api"
	"github.com/dominikschweigl/ticketless-park-system/internal/barrier"
	"github.com/dominikschweigl/ticketless-park-system/internal/booking"
	"github.com/dominikschweigl/ticketless-park-system/internal/cloud"
	"github.com/dominikschweigl/ticketless-park-system/internal/db"
	"github.com/dominikschweigl/ticketless-park-system/internal/ingest"
	"github.com/dominikschweigl/ticketless-park-system/internal/ledger"
	"github.com/dominikschweigl/ticketless-park-system/internal/notify"
	"github.com/dominikschweigl/ticketless-park-system/internal/orchestrator"
	"github.com/dominikschweigl/ticketless-park-system/internal/tracker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	log.Printf("configuration loaded for facility %s (capacity %d)", cfg.Facility.ID, cfg.Facility.MaxCapacity)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("parkedged-"+cfg.Facility.ID))
	if err != nil {
		log.Fatalf("failed to connect to NATS at %s: %v", cfg.NATS.URL, err)
	}
	log.Printf("connected to NATS at %s", cfg.NATS.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cloudClient := cloud.NewHTTPClient(cfg.Cloud.BaseURL, cfg.Cloud.Timeout)
	if cfg.Cloud.Enabled {
		if cloudClient.Health(ctx) {
			log.Printf("cloud service healthy at %s", cfg.Cloud.BaseURL)
		} else {
			log.Printf("WARNING: cloud service unreachable at %s, continuing degraded", cfg.Cloud.BaseURL)
		}
	}

	occupancy := tracker.New(cloudClient, cfg.Facility.ID, cfg.Facility.MaxCapacity, cfg.Facility.Latitude, cfg.Facility.Longitude)
	if cfg.Cloud.Enabled {
		if err := occupancy.Register(ctx); err != nil {
			log.Printf("WARNING: lot registration failed, occupancy pushes will reconcile later: %v", err)
		}
	}

	sessionLedger := ledger.NewGormStore(gormDB, cfg.Facility.ID)
	bookings := booking.NewReconciler(occupancy)

	var actuator barrier.Actuator
	if cfg.Barrier.ActuatorDisabled {
		actuator = barrier.NewSimulatedActuator()
	} else {
		actuator = barrier.NewNATSActuator(nc, cfg.Barrier.Timeout, *cfg.Barrier.SimulateWhenAbsent)
	}

	var alerts *notify.WorkerPool
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		alerts = notify.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		alerts.Start(ctx)
		log.Printf("operator alerting enabled with %d workers", cfg.WorkerPool.Size)
	} else {
		log.Println("VAPID keys not configured, operator alerting disabled")
	}

	orch := orchestrator.New(sessionLedger, bookings, occupancy, cloudClient, actuator, alerterOrNil(alerts), *cfg.Policy.FailOpenExit)

	intake := ingest.NewService(nc, orch, cfg.Facility.ID, cfg.Recognizer.MinConfidence)
	if err := intake.Start(ctx); err != nil {
		log.Fatalf("failed to subscribe to checkpoint events: %v", err)
	}

	router := api.NewRouter(&cfg.Server, sessionLedger, occupancy, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("diagnostics API listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}

	// Let in-flight checkpoint events finish their barrier decision before
	// the process exits.
	intake.Drain()

	if cfg.Cloud.Enabled {
		if err := occupancy.Deregister(shutdownCtx); err != nil {
			log.Printf("lot deregistration failed: %v", err)
		}
	}

	if err := nc.Drain(); err != nil {
		log.Printf("NATS drain failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}

// alerterOrNil avoids handing the orchestrator a typed nil.
func alerterOrNil(wp *notify.WorkerPool) orchestrator.Alerter {
	if wp == nil {
		return nil
	}
	return wp
}
