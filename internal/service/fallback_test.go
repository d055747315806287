package service

import "testing"

func TestFallbackResponderUsesDefaultsWhenEmpty(t *testing.T) {
	f := NewFallbackResponder([]string{"", ""})
	for _, r := range DefaultFallbackResponses {
		if !f.Contains(r) {
			t.Fatalf("expected default reply %q in pool", r)
		}
	}
}

func TestFallbackResponderPicksFromPool(t *testing.T) {
	f := NewFallbackResponder([]string{"a", "b", "c"})
	f.pick = func(n int) int {
		if n != 3 {
			t.Fatalf("expected pool of 3, got %d", n)
		}
		return 2
	}

	if got := f.Respond(); got != "c" {
		t.Fatalf("expected c, got %q", got)
	}
}

func TestFallbackResponderAlwaysAnswers(t *testing.T) {
	f := NewFallbackResponder(nil)
	for i := 0; i < 50; i++ {
		if r := f.Respond(); !f.Contains(r) || r == "" {
			t.Fatalf("unexpected reply %q", r)
		}
	}
	if f.Contains("something else") {
		t.Fatalf("unexpected match")
	}
}
