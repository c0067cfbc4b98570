package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/CardSorting/hana-relay/core/infra/logging"
)

// Bus is a thin wrapper over a NATS connection that speaks JSON envelopes.
//
// Delivery is fire-and-forget: a message is considered consumed once the
// subscription handler has been invoked. Handler errors are logged and the
// message is never redelivered, so handlers must deal with every failure path
// themselves.
type Bus struct {
	nc *nats.Conn
}

const (
	connName      = "hana-relay"
	reconnectWait = 2 * time.Second
	flushTimeout  = 5 * time.Second
)

var (
	// ErrNotConnected indicates the broker connection is gone; callers must
	// not assume the publish was attempted.
	ErrNotConnected = errors.New("bus not connected")

	errNilBus       = errors.New("bus not initialized")
	errEmptySubject = errors.New("empty subject")
	errNilHandler   = errors.New("nil handler")
)

// New dials NATS at the provided URL. A connection failure is returned to the
// caller; the owning process decides whether to retry initialization.
func New(url string) (*Bus, error) {
	opts := []nats.Option{
		nats.Name(connName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("bus", "disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("bus", "reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("bus", "connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}
	return &Bus{nc: nc}, nil
}

// AssertQueues verifies the well-known subject names and confirms the server
// round trip. Subjects need no declaration on the broker; a bad name or a dead
// connection surfaces here instead of on the first publish.
func (b *Bus) AssertQueues(subjects ...string) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	for _, subject := range subjects {
		if !validSubject(subject) {
			return fmt.Errorf("invalid subject %q", subject)
		}
	}
	if err := b.nc.FlushTimeout(flushTimeout); err != nil {
		return fmt.Errorf("broker round trip: %w", err)
	}
	return nil
}

// Publish JSON-encodes v and sends it on the given subject. At most one
// publish attempt is made per call.
func (b *Bus) Publish(subject string, v any) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if !validSubject(subject) {
		return errEmptySubject
	}
	if !b.nc.IsConnected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches a handler invoked once per inbound message. A non-empty
// queue joins a queue group so multiple processes share the subject.
func (b *Bus) Subscribe(subject, queue string, handler func(data []byte) error) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if !validSubject(subject) {
		return errEmptySubject
	}
	if handler == nil {
		return errNilHandler
	}
	cb := func(msg *nats.Msg) {
		if err := handler(msg.Data); err != nil {
			logging.Error("bus", "handler error", "subject", subject, "error", err)
		}
	}
	var err error
	if queue == "" {
		_, err = b.nc.Subscribe(subject, cb)
	} else {
		_, err = b.nc.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return nil
}

// Close shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}

// IsConnected reports whether the broker connection is live.
func (b *Bus) IsConnected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

// ConnectedURL returns the current server URL, if any.
func (b *Bus) ConnectedURL() string {
	if b == nil || b.nc == nil {
		return ""
	}
	return b.nc.ConnectedUrl()
}

func validSubject(subject string) bool {
	if subject == "" {
		return false
	}
	if strings.ContainsAny(subject, " \t\r\n") {
		return false
	}
	for _, token := range strings.Split(subject, ".") {
		if token == "" {
			return false
		}
	}
	return true
}
