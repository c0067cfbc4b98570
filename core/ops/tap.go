package ops

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CardSorting/hana-relay/core/infra/logging"
)

const (
	eventBufferDepth  = 256
	clientBufferDepth = 100
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscriber is the bus surface the tap consumes.
type Subscriber interface {
	Subscribe(subject, queue string, handler func([]byte) error) error
}

// Event is one observed bus message, re-framed for operators watching the
// stream endpoint.
type Event struct {
	Subject    string          `json:"subject"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Tap mirrors traffic on the relay's subjects out to websocket clients. It is
// strictly observational: subscriptions use no queue group, so the tap never
// steals work from the real consumers.
type Tap struct {
	eventsCh chan Event

	clients   map[*websocket.Conn]chan Event
	clientsMu sync.RWMutex

	clock func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTap builds a tap and starts its broadcast loop.
func NewTap() *Tap {
	t := &Tap{
		eventsCh: make(chan Event, eventBufferDepth),
		clients:  make(map[*websocket.Conn]chan Event),
		clock:    time.Now,
		stop:     make(chan struct{}),
	}
	go t.broadcast()
	return t
}

// Close stops the broadcast loop. Bus handlers keep draining into the event
// buffer and drop on overflow, so subscriptions never block after Close.
func (t *Tap) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Start subscribes the tap to each subject. Subjects that fail to subscribe
// are logged and skipped; the tap stays useful for the rest.
func (t *Tap) Start(bus Subscriber, subjects ...string) {
	for _, subj := range subjects {
		subject := subj
		if err := bus.Subscribe(subject, "", func(data []byte) error {
			evt := Event{
				Subject:    subject,
				ReceivedAt: t.clock().UTC(),
				Payload:    append(json.RawMessage(nil), data...),
			}
			select {
			case t.eventsCh <- evt:
			default:
			}
			return nil
		}); err != nil {
			logging.Error("ops", "tap subscribe failed", "subject", subject, "error", err)
		}
	}
}

func (t *Tap) broadcast() {
	for {
		var evt Event
		select {
		case evt = <-t.eventsCh:
		case <-t.stop:
			return
		}
		var slowClients []*websocket.Conn
		t.clientsMu.RLock()
		for conn, ch := range t.clients {
			select {
			case ch <- evt:
			default:
				slowClients = append(slowClients, conn)
			}
		}
		t.clientsMu.RUnlock()

		if len(slowClients) > 0 {
			t.clientsMu.Lock()
			for _, conn := range slowClients {
				delete(t.clients, conn)
			}
			t.clientsMu.Unlock()
			for _, conn := range slowClients {
				if err := conn.Close(); err != nil {
					logging.Error("ops", "ws client close failed", "error", err)
				}
			}
		}
	}
}

// HandleStream upgrades the request to a websocket and streams tap events
// until the client disconnects or falls behind.
func (t *Tap) HandleStream(w http.ResponseWriter, r *http.Request) {
	logging.Info("ops", "ws connection attempt", "remote", r.RemoteAddr)
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("ops", "ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	logging.Info("ops", "ws connected", "remote", r.RemoteAddr)

	clientCh := make(chan Event, clientBufferDepth)
	t.clientsMu.Lock()
	t.clients[ws] = clientCh
	t.clientsMu.Unlock()
	defer func() {
		t.clientsMu.Lock()
		delete(t.clients, ws)
		t.clientsMu.Unlock()
	}()

	for {
		select {
		case evt := <-clientCh:
			data, err := json.Marshal(evt)
			if err != nil {
				logging.Error("ops", "event marshal failed", "error", err)
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
