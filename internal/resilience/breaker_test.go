package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	transient := NewTransientError(errors.New("overloaded"), 529)

	if err := b.Allow(); err != nil {
		t.Fatalf("closed breaker rejected call: %v", err)
	}
	b.Report(transient)
	b.Report(errors.New("malformed json")) // resets
	b.Report(transient)
	if b.Open() {
		t.Fatal("breaker opened before threshold")
	}

	b.Report(transient)
	if !b.Open() {
		t.Fatal("breaker should be open")
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow = %v, want ErrBreakerOpen", err)
	}

	now = now.Add(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatal("second concurrent probe should be rejected")
	}

	b.Report(nil)
	if b.Open() {
		t.Fatal("successful probe should close the breaker")
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("closed breaker rejected call: %v", err)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.Report(NewTransientError(errors.New("down"), 503))
	now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatal("probe should be allowed")
	}
	b.Report(NewTransientError(errors.New("down"), 503))
	if !b.Open() {
		t.Fatal("failed probe should reopen")
	}
}
