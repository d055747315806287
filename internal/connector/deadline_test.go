package connector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithDeadlineAbandonsSlowCall(t *testing.T) {
	var finished atomic.Bool
	slow := Func(func(ctx context.Context, message string) (string, error) {
		// ignores ctx on purpose
		time.Sleep(150 * time.Millisecond)
		finished.Store(true)
		return "late reply", nil
	})

	start := time.Now()
	reply, err := WithDeadline(slow, 20*time.Millisecond).Send(context.Background(), "hello")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got reply=%q err=%v", reply, err)
	}
	if reply != "" {
		t.Fatalf("late reply leaked: %q", reply)
	}
	if time.Since(start) > 120*time.Millisecond {
		t.Fatalf("deadline did not return promptly")
	}
	if finished.Load() {
		t.Fatalf("inner call should still be running when the deadline fires")
	}
}

func TestWithDeadlinePassesReply(t *testing.T) {
	fast := Func(func(ctx context.Context, message string) (string, error) {
		return "echo: " + message, nil
	})

	reply, err := WithDeadline(fast, time.Second).Send(context.Background(), "hi")
	if err != nil || reply != "echo: hi" {
		t.Fatalf("unexpected result %q %v", reply, err)
	}
}

func TestWithDeadlineNormalisesFailures(t *testing.T) {
	tests := []struct {
		name  string
		inner Func
		want  *Error
	}{
		{
			name:  "foreign error",
			inner: func(ctx context.Context, m string) (string, error) { return "", errors.New("connection refused") },
			want:  ErrNetworkFailure,
		},
		{
			name:  "blank reply",
			inner: func(ctx context.Context, m string) (string, error) { return " \n", nil },
			want:  ErrBadResponse,
		},
		{
			name:  "panic",
			inner: func(ctx context.Context, m string) (string, error) { panic("boom") },
			want:  ErrNetworkFailure,
		},
		{
			name:  "typed error kept",
			inner: func(ctx context.Context, m string) (string, error) { return "", badResponse("bad") },
			want:  ErrBadResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WithDeadline(tt.inner, time.Second).Send(context.Background(), "x")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if KindOf(err) != tt.want.Kind {
				t.Fatalf("KindOf = %q, want %q", KindOf(err), tt.want.Kind)
			}
		})
	}
}

func TestWithDeadlineCallerCancel(t *testing.T) {
	blocked := Func(func(ctx context.Context, m string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithDeadline(blocked, time.Second).Send(ctx, "x")
	if err == nil || errors.Is(err, ErrTimeout) {
		t.Fatalf("expected non-timeout failure on cancel, got %v", err)
	}
}
