package connector

import (
	"errors"
	"sync"
	"testing"
)

func TestAvailabilityTracksLastOutcome(t *testing.T) {
	a := NewAvailability()
	if !a.Available() {
		t.Fatalf("availability should start optimistic")
	}

	var flips []bool
	a.OnChange(func(v bool) { flips = append(flips, v) })

	if !a.Observe(ErrTimeout) {
		t.Fatalf("first failure should flip the value")
	}
	if a.Available() {
		t.Fatalf("expected unavailable after failure")
	}
	if a.Observe(errors.New("again")) {
		t.Fatalf("repeated failure should not report a change")
	}
	if a.ChangedAt().IsZero() {
		t.Fatalf("expected change time to be recorded")
	}

	a.Observe(nil)
	if !a.Available() {
		t.Fatalf("expected available after success")
	}

	if len(flips) != 2 || flips[0] != false || flips[1] != true {
		t.Fatalf("unexpected change notifications: %v", flips)
	}
}

func TestAvailabilityNotifiesInOrderUnderConcurrency(t *testing.T) {
	a := NewAvailability()

	var mu sync.Mutex
	var last *bool
	a.OnChange(func(v bool) {
		mu.Lock()
		defer mu.Unlock()
		if last != nil && *last == v {
			t.Errorf("listener saw %v twice in a row", v)
		}
		last = &v
	})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				a.Observe(nil)
			} else {
				a.Observe(ErrNetworkFailure)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if last == nil {
		t.Fatalf("expected at least one change notification")
	}
	if *last != a.Available() {
		t.Fatalf("last notification %v disagrees with current value %v", *last, a.Available())
	}
}
