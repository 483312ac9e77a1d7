package barrier

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Result is the outcome of one barrier open request.
type Result string

const (
	// Opened means the actuator confirmed the barrier opened.
	Opened Result = "opened"
	// Denied means the actuator replied but refused.
	Denied Result = "denied"
	// TimedOut means no reply arrived within the configured timeout. The
	// gateway does not retry; the orchestrator decides what happens next.
	TimedOut Result = "timed_out"
	// Simulated means no actuator is listening and the gateway assumed
	// success so the facility keeps working in demo deployments.
	Simulated Result = "simulated"
)

// Succeeded reports whether the result lets the vehicle through. Simulated
// is treated identically to Opened by callers.
func (r Result) Succeeded() bool {
	return r == Opened || r == Simulated
}

// Actuator drives a named physical barrier. Implementations must not retain
// state between calls; an open request is ephemeral.
type Actuator interface {
	Open(ctx context.Context, barrierID string) Result
}

// requester is the slice of *nats.Conn the gateway needs.
type requester interface {
	Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error)
}

// natsActuator sends an open request over NATS request/reply to the
// barrier's trigger subject and waits for the actuator's confirmation.
type natsActuator struct {
	conn               requester
	timeout            time.Duration
	simulateWhenAbsent bool
}

// NewNATSActuator creates the real barrier actuator client.
func NewNATSActuator(conn *nats.Conn, timeout time.Duration, simulateWhenAbsent bool) Actuator {
	return &natsActuator{conn: conn, timeout: timeout, simulateWhenAbsent: simulateWhenAbsent}
}

func (a *natsActuator) Open(ctx context.Context, barrierID string) Result {
	subject := barrierID + ".trigger"

	reply, err := a.conn.Request(subject, nil, a.timeout)
	switch {
	case err == nil:
		if string(reply.Data) == "done" {
			log.Printf("[BARRIER] opened: %s", subject)
			return Opened
		}
		log.Printf("[BARRIER] denied: %s replied %q", subject, reply.Data)
		return Denied

	case errors.Is(err, nats.ErrNoResponders):
		if a.simulateWhenAbsent {
			log.Printf("[BARRIER] no responders on %s, simulating open", subject)
			return Simulated
		}
		log.Printf("[BARRIER] no responders on %s, denying", subject)
		return Denied

	case errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		log.Printf("[BARRIER] timeout waiting for reply on %s", subject)
		return TimedOut

	default:
		log.Printf("[BARRIER] request on %s failed: %v", subject, err)
		return Denied
	}
}

// simulatedActuator always succeeds. Used when no actuator process exists at
// all, e.g. in local development.
type simulatedActuator struct{}

// NewSimulatedActuator creates an actuator stub that opens every barrier.
func NewSimulatedActuator() Actuator {
	return simulatedActuator{}
}

func (simulatedActuator) Open(ctx context.Context, barrierID string) Result {
	log.Printf("[BARRIER] actuator disabled, simulating open for %s", barrierID)
	return Simulated
}
