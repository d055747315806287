package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"supportchat-backend/internal/connector"
	"supportchat-backend/internal/model"
)

func TestOrchestratorHappyPath(t *testing.T) {
	o, reg, avail := newTestOrchestrator(t, replyWith("Sure, happy to help."), 50*time.Millisecond)

	ex, ok := o.Submit("I need help")
	if !ok {
		t.Fatalf("expected submit to be accepted")
	}
	if ex.User.Text != "I need help" || ex.User.Sender != model.SenderUser || ex.User.Type != model.TypeText {
		t.Fatalf("unexpected user message %+v", ex.User)
	}
	if !o.IsTyping() || !o.InFlight() {
		t.Fatalf("expected typing and in-flight while the reply is pending")
	}

	bot := waitExchange(t, ex)
	if bot.Text != "Sure, happy to help." || bot.Sender != model.SenderBot || bot.Type != model.TypeText {
		t.Fatalf("unexpected bot message %+v", bot)
	}
	if bot.Timestamp.Before(ex.User.Timestamp) {
		t.Fatalf("reply timestamp %v precedes user message %v", bot.Timestamp, ex.User.Timestamp)
	}
	if bot.ID != ex.User.ID+1 {
		t.Fatalf("reply must directly follow the user message: %d after %d", bot.ID, ex.User.ID)
	}
	if o.IsTyping() || o.InFlight() {
		t.Fatalf("expected typing and in-flight cleared")
	}
	if !avail.Available() {
		t.Fatalf("expected backend available")
	}

	session, _ := reg.Get(o.sessionID)
	if len(session.Messages) != 2 || session.LastMessage != "Sure, happy to help." {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestOrchestratorDegradedMode(t *testing.T) {
	for _, kind := range []connector.Kind{connector.KindTimeout, connector.KindNetworkFailure, connector.KindBadResponse} {
		t.Run(string(kind), func(t *testing.T) {
			o, _, avail := newTestOrchestrator(t, failWith(kind), 0)

			ex, ok := o.Submit("hello?")
			if !ok {
				t.Fatalf("expected submit to be accepted")
			}

			bot := waitExchange(t, ex)
			if !o.fallback.Contains(bot.Text) {
				t.Fatalf("expected a fallback reply, got %q", bot.Text)
			}
			if bot.Type != model.TypeText || bot.Sender != model.SenderBot {
				t.Fatalf("fallback must look like a normal reply: %+v", bot)
			}
			if avail.Available() {
				t.Fatalf("expected backend unavailable")
			}
		})
	}
}

func TestOrchestratorRecoversAvailability(t *testing.T) {
	var mu sync.Mutex
	fail := true
	conn := connector.Func(func(ctx context.Context, message string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return "", &connector.Error{Kind: connector.KindNetworkFailure}
		}
		return "back online", nil
	})

	o, _, avail := newTestOrchestrator(t, conn, 0)

	ex, _ := o.Submit("first")
	waitExchange(t, ex)
	if avail.Available() {
		t.Fatalf("expected unavailable after failure")
	}

	mu.Lock()
	fail = false
	mu.Unlock()

	ex, _ = o.Submit("second")
	if bot := waitExchange(t, ex); bot.Text != "back online" {
		t.Fatalf("unexpected reply %q", bot.Text)
	}
	if !avail.Available() {
		t.Fatalf("expected available after success")
	}
}

func TestOrchestratorSingleFlight(t *testing.T) {
	gate := newGatedConnector("done")
	o, reg, _ := newTestOrchestrator(t, gate, 0)

	ex, ok := o.Submit("first")
	if !ok {
		t.Fatalf("expected first submit accepted")
	}
	<-gate.started

	if _, ok := o.Submit("second"); ok {
		t.Fatalf("expected submit rejected while a reply is pending")
	}
	messages, _ := reg.Messages(o.sessionID)
	if len(messages) != 1 {
		t.Fatalf("rejected submit must not append, got %d messages", len(messages))
	}

	close(gate.release)
	waitExchange(t, ex)

	ex, ok = o.Submit("third")
	if !ok {
		t.Fatalf("expected submit accepted once the reply landed")
	}
	waitExchange(t, ex)

	messages, _ = reg.Messages(o.sessionID)
	want := []string{"first", "done", "third", "done"}
	if len(messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(messages))
	}
	for i, m := range messages {
		if m.Text != want[i] {
			t.Fatalf("message %d: expected %q, got %q", i, want[i], m.Text)
		}
	}
}

func TestOrchestratorConcurrentSubmitsAcceptOne(t *testing.T) {
	gate := newGatedConnector("ok")
	o, reg, _ := newTestOrchestrator(t, gate, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := o.Submit("hi"); ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted submit, got %d", accepted)
	}
	messages, _ := reg.Messages(o.sessionID)
	if len(messages) != 1 {
		t.Fatalf("expected one user message, got %d", len(messages))
	}
	close(gate.release)
}

func TestOrchestratorIgnoresBlankInput(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t, replyWith("x"), 0)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, ok := o.Submit(text); ok {
			t.Fatalf("expected %q to be ignored", text)
		}
	}
	if o.InFlight() || o.IsTyping() {
		t.Fatalf("blank input must not change state")
	}
	messages, _ := reg.Messages(o.sessionID)
	if len(messages) != 0 {
		t.Fatalf("blank input must not append")
	}
}

func TestOrchestratorCloseDropsPendingReply(t *testing.T) {
	gate := newGatedConnector("late")
	o, reg, avail := newTestOrchestrator(t, gate, 0)

	ex, _ := o.Submit("hello")
	<-gate.started

	o.Close()

	select {
	case <-ex.Done():
	default:
		t.Fatalf("exchange must be finished once Close returns")
	}
	if _, ok := ex.Wait(context.Background()); ok {
		t.Fatalf("expected no reply after close")
	}
	if o.InFlight() || o.IsTyping() {
		t.Fatalf("close must release guard and typing")
	}
	if !avail.Available() {
		t.Fatalf("teardown must not count as a backend failure")
	}

	messages, _ := reg.Messages(o.sessionID)
	if len(messages) != 1 {
		t.Fatalf("expected only the user message, got %d", len(messages))
	}

	if _, ok := o.Submit("again"); ok {
		t.Fatalf("closed orchestrator must reject submits")
	}
}

func TestOrchestratorCloseDuringTypingDelay(t *testing.T) {
	called := make(chan struct{})
	conn := connector.Func(func(ctx context.Context, message string) (string, error) {
		close(called)
		return "never shown", nil
	})
	o, reg, _ := newTestOrchestrator(t, conn, time.Hour)

	ex, _ := o.Submit("hello")
	<-called
	time.Sleep(10 * time.Millisecond)

	o.Close()

	if _, ok := ex.Wait(context.Background()); ok {
		t.Fatalf("expected no reply after close")
	}
	messages, _ := reg.Messages(o.sessionID)
	if len(messages) != 1 {
		t.Fatalf("expected only the user message, got %d", len(messages))
	}
	if o.IsTyping() {
		t.Fatalf("expected typing cleared")
	}
}

func TestOrchestratorSystemMessagesBypassGuard(t *testing.T) {
	gate := newGatedConnector("reply")
	o, reg, _ := newTestOrchestrator(t, gate, 0)

	ex, _ := o.Submit("hello")
	<-gate.started

	msg, err := o.AppendSystem("An agent will join shortly.")
	if err != nil {
		t.Fatalf("append system: %v", err)
	}
	if msg.Type != model.TypeSystem || msg.Sender != model.SenderBot {
		t.Fatalf("unexpected system message %+v", msg)
	}

	close(gate.release)
	waitExchange(t, ex)

	messages, _ := reg.Messages(o.sessionID)
	if len(messages) != 3 || messages[2].Text != "reply" {
		t.Fatalf("unexpected history %+v", messages)
	}
}

func TestExchangeWaitHonoursContext(t *testing.T) {
	gate := newGatedConnector("slow")
	o, _, _ := newTestOrchestrator(t, gate, 0)

	ex, _ := o.Submit("hello")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := ex.Wait(ctx); ok {
		t.Fatalf("expected wait to give up")
	}
	close(gate.release)
	waitExchange(t, ex)
}
