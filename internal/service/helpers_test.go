package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"supportchat-backend/internal/connector"
	"supportchat-backend/internal/events"
	"supportchat-backend/internal/model"
	"supportchat-backend/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) ofType(t events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func replyWith(reply string) connector.Connector {
	return connector.Func(func(ctx context.Context, message string) (string, error) {
		return reply, nil
	})
}

func failWith(kind connector.Kind) connector.Connector {
	return connector.Func(func(ctx context.Context, message string) (string, error) {
		return "", &connector.Error{Kind: kind}
	})
}

// gatedConnector blocks every call until release is closed or the caller
// gives up.
type gatedConnector struct {
	release chan struct{}
	started chan struct{}
	reply   string
}

func newGatedConnector(reply string) *gatedConnector {
	return &gatedConnector{
		release: make(chan struct{}),
		started: make(chan struct{}, 16),
		reply:   reply,
	}
}

func (g *gatedConnector) Send(ctx context.Context, message string) (string, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return g.reply, nil
	case <-ctx.Done():
		return "", &connector.Error{Kind: connector.KindTimeout, Err: ctx.Err()}
	}
}

func newTestRegistry(t *testing.T) (*Registry, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewRegistry(storage.NewMemoryStorage(), pub, "New Chat"), pub
}

func newTestOrchestrator(t *testing.T, conn connector.Connector, delay time.Duration) (*Orchestrator, *Registry, *connector.Availability) {
	t.Helper()

	reg, pub := newTestRegistry(t)
	session, err := reg.Create("", model.KindSupport, model.StatusActive)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := reg.Select(session.ID); err != nil {
		t.Fatalf("select: %v", err)
	}

	avail := connector.NewAvailability()
	o := NewOrchestrator(
		session.ID,
		reg,
		conn,
		avail,
		NewFallbackResponder(nil),
		NewTypingCoordinator(session.ID, delay, pub),
	)
	t.Cleanup(o.Close)
	return o, reg, avail
}

func waitExchange(t *testing.T, ex *Exchange) model.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, ok := ex.Wait(ctx)
	if !ok {
		t.Fatalf("exchange did not complete")
	}
	return msg
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
