package deliver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted reports that every delivery attempt failed.
var ErrExhausted = errors.New("delivery retries exhausted")

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// Policy bounds delivery retries: MaxAttempts sequential tries with an
// exponentially growing, capped delay between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	return p
}

// Delay returns the pause before the given retry (attempt counts from 1; the
// first attempt has no pause).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt <= 1 {
		return 0
	}
	delay := p.BaseDelay << (attempt - 2)
	if delay > p.MaxDelay || delay < 0 {
		delay = p.MaxDelay
	}
	return delay
}

// Do invokes fn until it succeeds or the attempt budget is spent. It returns
// the number of attempts made and, on failure, ErrExhausted wrapping the last
// error. Context cancellation stops the loop between attempts.
func (p Policy) Do(ctx context.Context, fn func() error) (int, error) {
	p = p.normalized()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			}
		}
		if lastErr = fn(); lastErr == nil {
			return attempt, nil
		}
	}
	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, p.MaxAttempts, lastErr)
}
