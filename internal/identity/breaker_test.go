package identity

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBreakerTransitions(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(2, time.Minute, isUpstream, discardLogger())
	b.now = func() time.Time { return now }

	upstream := fmt.Errorf("%w: status 503", ErrUpstream)
	failing := func() error { return upstream }
	ok := func() error { return nil }

	// client errors never count
	for range 5 {
		_ = b.Execute(func() error { return ErrInvalidCredentials })
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}

	_ = b.Execute(failing)
	_ = b.Execute(failing)
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker let a call through: err=%v called=%v", err, called)
	}

	now = now.Add(2 * time.Minute)
	if err := b.Execute(failing); !errors.Is(err, ErrUpstream) {
		t.Fatalf("probe error = %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("failed probe must reopen, state = %s", b.State())
	}

	now = now.Add(2 * time.Minute)
	if err := b.Execute(ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(2, time.Minute, isUpstream, discardLogger())
	upstream := fmt.Errorf("%w: timeout", ErrUpstream)

	_ = b.Execute(func() error { return upstream })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return upstream })
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}
}

func TestBreakerStateString(t *testing.T) {
	tests := map[BreakerState]string{
		StateClosed:     "closed",
		StateOpen:       "open",
		StateHalfOpen:   "half-open",
		BreakerState(9): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Fatalf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
