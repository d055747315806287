package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func receive(t *testing.T, s *Subscriber) Event {
	t.Helper()
	select {
	case e, ok := <-s.Events():
		if !ok {
			t.Fatalf("subscriber closed")
		}
		return e
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestHubFiltersBySession(t *testing.T) {
	h := startHub(t)

	s1 := h.Subscribe("s1")
	all := h.Subscribe("")

	h.Publish(Event{Type: EventTyping, SessionID: "s2", Payload: true})
	h.Publish(Event{Type: EventMessage, SessionID: "s1", Payload: "hello"})
	h.Publish(Event{Type: EventAvailability, Payload: false})

	if e := receive(t, s1); e.Type != EventMessage || e.SessionID != "s1" {
		t.Fatalf("unexpected first event for s1: %+v", e)
	}
	if e := receive(t, s1); e.Type != EventAvailability {
		t.Fatalf("availability should reach every subscriber, got %+v", e)
	}

	for _, want := range []EventType{EventTyping, EventMessage, EventAvailability} {
		if e := receive(t, all); e.Type != want {
			t.Fatalf("expected %s, got %+v", want, e)
		}
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := startHub(t)
	s := h.Subscribe("s1")
	h.Unsubscribe(s)

	select {
	case _, ok := <-s.Events():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed")
	}
}

func TestHubStopClosesSubscribers(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	s := h.Subscribe("")
	cancel()

	select {
	case _, ok := <-s.Events():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber not closed on stop")
	}

	late := h.Subscribe("s1")
	if _, ok := <-late.Events(); ok {
		t.Fatalf("subscribing to a stopped hub should yield a closed channel")
	}
	h.Publish(Event{Type: EventTyping})
}

func TestWSServerStreamsEvents(t *testing.T) {
	h := startHub(t)
	ws := NewWSServer(h, []string{"*"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.Serve(w, r, r.URL.Query().Get("session_id"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session_id=s1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// the subscription is registered right after the upgrade, so keep
	// publishing until the first event arrives
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.Publish(Event{Type: EventTyping, SessionID: "s1", Payload: true})
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Type != EventTyping || got.SessionID != "s1" {
		t.Fatalf("unexpected event %+v", got)
	}
}
