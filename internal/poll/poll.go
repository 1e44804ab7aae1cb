// Package poll repeats a readiness check at a fixed interval until it reports
// ready, fails, or a deadline passes.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

// DefaultInterval is the pause between attempts.
const DefaultInterval = time.Second

// Policy bounds a poll loop. Clock and Timer are swapped for a FakeClock in tests.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    backoff.Clock
	Timer    backoff.Timer
	// Notify is called before each wait with the reason and the wait length.
	Notify func(attempt int, wait time.Duration)
}

// WithTimeout returns a copy of p with a different deadline window.
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.Timeout = d
	return p
}

func (p Policy) withDefaults() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.Clock == nil {
		p.Clock = backoff.SystemClock
	}
	return p
}

// Check reports the current payload and whether it is final. Any error ends the loop.
type Check[T any] func(ctx context.Context) (payload T, ready bool, err error)

var errDeadline = errors.New("deadline reached")

// Until runs check until it reports ready. The deadline is fixed at entry as
// now+Timeout and tested before every attempt after the first, so a slow
// check shortens the remaining window instead of extending it. Each attempt
// runs under a context cancelled one interval after the deadline; an
// attempt cut off that way counts as a timeout. The context of the ready
// attempt is left open for its payload.
func Until[T any](ctx context.Context, p Policy, check Check[T]) (domain.PollResult[T], error) {
	p = p.withDefaults()
	deadline := p.Clock.Now().Add(p.Timeout)
	res := domain.PollResult[T]{Status: domain.PollPending}

	op := func() error {
		if res.Attempts > 0 && !p.Clock.Now().Before(deadline) {
			return backoff.Permanent(errDeadline)
		}
		res.Attempts++
		actx, cancel := context.WithCancelCause(ctx)
		cutoff := time.AfterFunc(deadline.Sub(p.Clock.Now())+p.Interval, func() { cancel(errDeadline) })
		v, ready, err := check(actx)
		cutoff.Stop()
		res.Payload = v
		if errors.Is(context.Cause(actx), errDeadline) {
			return backoff.Permanent(errDeadline)
		}
		if err != nil || !ready {
			cancel(nil)
			if err != nil {
				return backoff.Permanent(err)
			}
			return domain.ErrNotReady
		}
		// a ready payload may still stream from actx
		return nil
	}

	var notify backoff.Notify
	if p.Notify != nil {
		notify = func(_ error, wait time.Duration) { p.Notify(res.Attempts, wait) }
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(p.Interval), ctx)
	err := backoff.RetryNotifyWithTimer(op, b, notify, p.Timer)
	switch {
	case err == nil:
		res.Status = domain.PollReady
		return res, nil
	case errors.Is(err, errDeadline):
		res.Status = domain.PollTimedOut
		return res, fmt.Errorf("op=poll.Until: %w after %s (%d attempts)", domain.ErrTimedOut, p.Timeout, res.Attempts)
	default:
		res.Status = domain.PollFailed
		return res, err
	}
}
