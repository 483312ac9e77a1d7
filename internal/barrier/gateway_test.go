package barrier

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

// fakeConn scripts the actuator side of the request/reply exchange.
type fakeConn struct {
	reply   []byte
	err     error
	subject string
}

func (f *fakeConn) Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	f.subject = subj
	if f.err != nil {
		return nil, f.err
	}
	return &nats.Msg{Data: f.reply}, nil
}

func TestOpen_Confirmed(t *testing.T) {
	conn := &fakeConn{reply: []byte("done")}
	a := &natsActuator{conn: conn, timeout: time.Second, simulateWhenAbsent: true}

	result := a.Open(context.Background(), "entry_0")

	assert.Equal(t, Opened, result)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "entry_0.trigger", conn.subject)
}

func TestOpen_UnexpectedReplyIsDenied(t *testing.T) {
	conn := &fakeConn{reply: []byte("jammed")}
	a := &natsActuator{conn: conn, timeout: time.Second, simulateWhenAbsent: true}

	result := a.Open(context.Background(), "exit_0")

	assert.Equal(t, Denied, result)
	assert.False(t, result.Succeeded())
}

func TestOpen_NoResponders(t *testing.T) {
	conn := &fakeConn{err: nats.ErrNoResponders}

	a := &natsActuator{conn: conn, timeout: time.Second, simulateWhenAbsent: true}
	result := a.Open(context.Background(), "entry_0")
	assert.Equal(t, Simulated, result)
	assert.True(t, result.Succeeded(), "simulated open is treated identically to opened")

	// The demo fallback is a policy choice, not hardwired.
	strict := &natsActuator{conn: conn, timeout: time.Second, simulateWhenAbsent: false}
	result = strict.Open(context.Background(), "entry_0")
	assert.Equal(t, Denied, result)
}

func TestOpen_Timeout(t *testing.T) {
	conn := &fakeConn{err: nats.ErrTimeout}
	a := &natsActuator{conn: conn, timeout: time.Second, simulateWhenAbsent: true}

	result := a.Open(context.Background(), "entry_0")

	assert.Equal(t, TimedOut, result)
	assert.False(t, result.Succeeded())
}

func TestSimulatedActuator(t *testing.T) {
	a := NewSimulatedActuator()
	assert.Equal(t, Simulated, a.Open(context.Background(), "entry_0"))
}
