package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

// subscribe joins b and consumes the initial workspaces.active snapshot.
func subscribe(t *testing.T, b *Broker) chan []byte {
	t.Helper()
	ch := b.Subscribe()
	t.Cleanup(func() { b.Unsubscribe(ch) })
	select {
	case msg := <-ch:
		if !strings.Contains(string(msg), "event: "+TypeWorkspacesActive) {
			t.Fatalf("first frame = %q, want active snapshot", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	return ch
}

func TestSubscribeReceivesActiveSnapshot(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	first := subscribe(t, b)
	// The first change emits the throttled active event; the second does not.
	b.PublishWorkspaceEvent(TypeWorkspaceAcquired, "/tmp/a", 1)
	b.PublishWorkspaceEvent(TypeWorkspaceAcquired, "/tmp/b", 2)
	for range 3 {
		select {
		case <-first:
		case <-time.After(time.Second):
			t.Fatal("timeout draining first subscriber")
		}
	}

	late := b.Subscribe()
	defer b.Unsubscribe(late)
	select {
	case msg := <-late:
		s := string(msg)
		if !strings.Contains(s, "event: "+TypeWorkspacesActive) || !strings.Contains(s, `"count":2`) {
			t.Errorf("snapshot = %q, want active count 2", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
}

func TestPublishOperation(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := subscribe(t, b)

	b.PublishOperation(Operation{Operation: "get_file_content", Repository: "r", Branch: "main", Error: "File not found: a.md"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: operation.completed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"error":"File not found: a.md"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishWorkspaceEvent_ActiveThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := subscribe(t, b)

	b.PublishWorkspaceEvent(TypeWorkspaceAcquired, "/tmp/a", 1)
	b.PublishWorkspaceEvent(TypeWorkspaceReleased, "/tmp/a", 0)
	b.PublishWorkspaceEvent("bogus", "/tmp/b", 5)

	time.Sleep(50 * time.Millisecond)
	activeCount := 0
	lifecycle := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			switch {
			case strings.Contains(s, TypeWorkspacesActive):
				activeCount++
				if !strings.Contains(s, `"count":1`) {
					t.Errorf("active event = %q, want count 1", s)
				}
			case strings.Contains(s, "bogus"):
				t.Errorf("unknown kind broadcast: %q", s)
			default:
				lifecycle++
			}
		default:
			break loop
		}
	}

	if lifecycle != 2 {
		t.Errorf("lifecycle events = %d, want 2", lifecycle)
	}
	if activeCount != 1 {
		t.Errorf("active events = %d, want 1 (throttled)", activeCount)
	}
}

type flushRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Write(p)
}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishWorkspaceEvent(TypeWorkspaceAcquired, "/tmp/x", 1)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: workspace.acquired") {
		t.Errorf("handler output missing event: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for range 70 {
		b.PublishOperation(Operation{Operation: "search_markdown_content"})
	}
	if b.ClientCount() != 1 {
		t.Error("slow client should stay subscribed")
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.PublishOperation(Operation{Operation: "x"})
	b.PublishWorkspaceEvent(TypeWorkspaceReleased, "/tmp/x", 0)
}
