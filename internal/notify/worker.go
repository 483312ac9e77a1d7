package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"github.com/dominikschweigl/ticketless-park-system/internal/model"
)

// Alert describes an anomaly worth paging an operator about.
type Alert struct {
	Kind      string // "barrier_timeout", "exit_denied", "exit_without_entry"
	Plate     string
	BarrierID string
}

func (a Alert) message() string {
	switch a.Kind {
	case "barrier_timeout":
		return fmt.Sprintf("Barrier %s did not confirm opening for plate %s", a.BarrierID, a.Plate)
	case "exit_denied":
		return fmt.Sprintf("Exit denied for unpaid plate %s at barrier %s", a.Plate, a.BarrierID)
	case "exit_without_entry":
		return fmt.Sprintf("Plate %s exited without a matching entry session", a.Plate)
	default:
		return fmt.Sprintf("Parking anomaly (%s) for plate %s", a.Kind, a.Plate)
	}
}

// AlertSender defines the interface for sending a web push notification.
type AlertSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// webPushSender is the real implementation using the webpush library.
type webPushSender struct{}

func (webPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans alert deliveries out over a fixed set of workers so a slow
// push endpoint never delays a barrier decision.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	db      *gorm.DB
	webpush *webpush.Options
	sender  AlertSender
}

// NewWorkerPool creates a new alert worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size),
		db:      db,
		webpush: webpushOptions,
		sender:  webPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case alert := <-wp.jobs:
			wp.deliver(ctx, alert)
		case <-ctx.Done():
			log.Printf("[ALERT] worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert without blocking the caller. If the queue is full
// the alert is dropped; alerting is best-effort by design.
func (wp *WorkerPool) Dispatch(alert Alert) {
	select {
	case wp.jobs <- alert:
	default:
		log.Printf("[ALERT] queue full, dropping alert %s for plate=%s", alert.Kind, alert.Plate)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

// deliver sends one alert to every subscribed operator.
func (wp *WorkerPool) deliver(ctx context.Context, alert Alert) {
	var subscriptions []model.AlertSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("[ALERT] failed to fetch subscriptions: %v", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload := []byte(alert.message())
	log.Printf("[ALERT] sending %q to %d operators", payload, len(subscriptions))
	for _, sub := range subscriptions {
		wp.send(ctx, sub, payload)
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.AlertSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("[ALERT] failed to send to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("[ALERT] subscription %s expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("[ALERT] failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
