package deliver

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayGrowthAndCap(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	if got := p.Delay(1); got != 0 {
		t.Fatalf("first attempt must not wait, got %s", got)
	}
	if got := p.Delay(2); got != 100*time.Millisecond {
		t.Fatalf("unexpected second delay: %s", got)
	}
	if got := p.Delay(3); got != 200*time.Millisecond {
		t.Fatalf("unexpected third delay: %s", got)
	}
	if got := p.Delay(4); got != 300*time.Millisecond {
		t.Fatalf("delay must cap at max, got %s", got)
	}
	if got := p.Delay(40); got != 300*time.Millisecond {
		t.Fatalf("late delays must stay capped, got %s", got)
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	attempts, err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil || attempts != 1 || calls != 1 {
		t.Fatalf("expected single successful attempt, got attempts=%d calls=%d err=%v", attempts, calls, err)
	}
}

func TestDoStopsOnLaterSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond}
	calls := 0
	attempts, err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || attempts != 3 || calls != 3 {
		t.Fatalf("expected success on third attempt, got attempts=%d calls=%d err=%v", attempts, calls, err)
	}
}

func TestDoExhaustsExactBudget(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	attempts, err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("still down")
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("budget must be exactly 3 attempts, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := p.Do(ctx, func() error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before the long backoff, got %d", calls)
	}
}

func TestNormalizedDefaults(t *testing.T) {
	p := Policy{}.normalized()
	if p.MaxAttempts != defaultMaxAttempts || p.MaxDelay != defaultMaxDelay {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}
