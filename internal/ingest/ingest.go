package ingest

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/dominikschweigl/ticketless-park-system/internal/orchestrator"
)

// Subjects delivering checkpoint and booking events.
const (
	SubjectEntry = "recognition.entry"
	SubjectExit  = "recognition.exit"
)

// bookingEvent is the fire-and-forget payload on the facility's booking
// subject.
type bookingEvent struct {
	LicensePlate string `json:"licensePlate"`
	Action       string `json:"action"`
}

// subscriber is the slice of *nats.Conn the service needs.
type subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Service subscribes to the recognizer and booking feeds and hands each
// event to the orchestrator on its own goroutine, so one slow barrier or
// cloud call never stalls unrelated traffic.
type Service struct {
	conn          subscriber
	orch          *orchestrator.Orchestrator
	facilityID    string
	minConfidence float64

	wg   sync.WaitGroup
	subs []*nats.Subscription
}

// NewService creates the event intake for one facility.
func NewService(conn *nats.Conn, orch *orchestrator.Orchestrator, facilityID string, minConfidence float64) *Service {
	return &Service{
		conn:          conn,
		orch:          orch,
		facilityID:    facilityID,
		minConfidence: minConfidence,
	}
}

// Start subscribes to all subjects. ctx bounds the handling of each event.
func (s *Service) Start(ctx context.Context) error {
	entrySub, err := s.conn.Subscribe(SubjectEntry, func(msg *nats.Msg) {
		s.dispatchRecognition(ctx, orchestrator.CheckpointEntry, msg.Data)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, entrySub)

	exitSub, err := s.conn.Subscribe(SubjectExit, func(msg *nats.Msg) {
		s.dispatchRecognition(ctx, orchestrator.CheckpointExit, msg.Data)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, exitSub)

	bookingSubject := "booking." + s.facilityID
	bookingSub, err := s.conn.Subscribe(bookingSubject, func(msg *nats.Msg) {
		s.handleBooking(ctx, msg.Data)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, bookingSub)

	log.Printf("[EDGE] subscribed to %s, %s and %s", SubjectEntry, SubjectExit, bookingSubject)
	return nil
}

// dispatchRecognition validates one recognizer payload and runs it through
// the orchestrator on its own goroutine.
func (s *Service) dispatchRecognition(ctx context.Context, checkpoint string, data []byte) {
	var ev orchestrator.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[EDGE] malformed recognition payload on %s subject: %v", checkpoint, err)
		return
	}
	// The subject is authoritative for the checkpoint type; the payload
	// field is advisory.
	ev.Checkpoint = checkpoint

	if ev.Plate == "" {
		log.Printf("[EDGE] recognition without plate (barrier=%s), ignoring", ev.BarrierID)
		return
	}
	if ev.Confidence < s.minConfidence {
		log.Printf("[EDGE] low-confidence recognition plate=%s conf=%.2f (min %.2f), ignoring", ev.Plate, ev.Confidence, s.minConfidence)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.orch.HandleEvent(ctx, ev)
	}()
}

func (s *Service) handleBooking(ctx context.Context, data []byte) {
	var ev bookingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[BOOKING] malformed booking payload: %v", err)
		return
	}
	s.orch.HandleBookingAction(ctx, ev.LicensePlate, ev.Action)
}

// Drain unsubscribes and waits for in-flight events to finish their barrier
// decision. A half-open barrier is worse than a late log line.
func (s *Service) Drain() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[EDGE] unsubscribe failed: %v", err)
		}
	}
	s.wg.Wait()
}
