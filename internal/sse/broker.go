// Package sse streams workspace lifecycle and operation events to HTTP clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeWorkspaceAcquired  = "workspace.acquired"
	TypeWorkspaceReleased  = "workspace.released"
	TypeWorkspacesActive   = "workspaces.active"
	TypeOperationCompleted = "operation.completed"
)

// Operation is the data of an operation.completed event.
type Operation struct {
	Operation  string `json:"operation"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Error      string `json:"error,omitempty"`
}

// signal is one unit of work for the broker loop: either a workspace change
// or a finished operation.
type signal struct {
	kind   string
	path   string
	active int
	op     *Operation
}

// Broker fans workspace and operation events out to subscribed clients.
//
// The client set, the last known active count and the throttle timestamp are
// owned by a single loop goroutine.
type Broker struct {
	throttle time.Duration

	join   chan chan []byte
	leave  chan chan []byte
	in     chan signal
	counts chan chan int

	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one workspaces.active event
// per throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		throttle: throttle,
		join:     make(chan chan []byte),
		leave:    make(chan chan []byte),
		in:       make(chan signal, 256),
		counts:   make(chan chan int),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go b.loop()
	return b
}

// frame renders one SSE message. Unencodable data yields nil.
func frame(typ string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", typ, payload)
}

func activeFrame(n int) []byte {
	return frame(TypeWorkspacesActive, map[string]int{"count": n})
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	active := 0
	var lastActive time.Time

	send := func(msg []byte) {
		if msg == nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default: // slow client drops the frame
			}
		}
	}

	for {
		select {
		case <-b.stop:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}
			ch <- activeFrame(active)

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case s := <-b.in:
			if s.op != nil {
				send(frame(TypeOperationCompleted, s.op))
				continue
			}
			if s.kind != TypeWorkspaceAcquired && s.kind != TypeWorkspaceReleased {
				continue
			}
			active = s.active
			send(frame(s.kind, map[string]string{"path": s.path}))
			if now := time.Now(); now.Sub(lastActive) >= b.throttle {
				lastActive = now
				send(activeFrame(active))
			}

		case resp := <-b.counts:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every subscriber channel. It is idempotent.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// Subscribe adds a client. The first frame on the returned channel is a
// workspaces.active snapshot.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.counts <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

func (b *Broker) enqueue(s signal) {
	if b.closed.Load() {
		return
	}
	select {
	case b.in <- s:
	case <-b.stopped:
	}
}

// PublishWorkspaceEvent publishes a workspace lifecycle change followed by a
// throttled workspaces.active event carrying the number of live workspaces.
// Unknown kinds are ignored.
func (b *Broker) PublishWorkspaceEvent(kind, path string, active int) {
	b.enqueue(signal{kind: kind, path: path, active: active})
}

// PublishOperation publishes an operation.completed event.
func (b *Broker) PublishOperation(op Operation) {
	b.enqueue(signal{op: &op})
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
