package framegrab

import (
	"context"
	"log/slog"
	"time"
)

// WaitStrategy blocks until the controller has settled, the strategy gives
// up, or ctx is done. It never disarms the controller.
type WaitStrategy interface {
	Wait(ctx context.Context, c *Controller) (ControllerStatus, error)
}

// BusyPoll spins on the status register. MaxPolls of 0 spins until settled
// or until ctx is done.
type BusyPoll struct {
	MaxPolls int
}

func (b BusyPoll) Wait(ctx context.Context, c *Controller) (ControllerStatus, error) {
	start := time.Now()
	var status ControllerStatus
	for polls := 0; b.MaxPolls == 0 || polls < b.MaxPolls; polls++ {
		if err := ctx.Err(); err != nil {
			return status, err
		}
		var err error
		if status, err = c.Poll(); err != nil {
			return status, err
		}
		if c.Settled() {
			return status, nil
		}
	}
	return status, &TimeoutError{Level: c.Level(), Want: c.ExpectedLevel(), Elapsed: time.Since(start)}
}

// TimedPoll polls every Interval until Timeout has elapsed.
type TimedPoll struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (t TimedPoll) Wait(ctx context.Context, c *Controller) (ControllerStatus, error) {
	return pollUntil(ctx, c, t.Interval, t.Timeout, nil)
}

// StagedPoll behaves like TimedPoll and calls OnLevel once for every new
// readiness level observed, including levels that were skipped over.
type StagedPoll struct {
	Interval time.Duration
	Timeout  time.Duration
	OnLevel  func(level int)
}

func (s StagedPoll) Wait(ctx context.Context, c *Controller) (ControllerStatus, error) {
	reported := c.Level()
	return pollUntil(ctx, c, s.Interval, s.Timeout, func(level int) {
		for ; reported < level; reported++ {
			slog.Debug("framegrab: status level reached", "level", reported+1, "expected", c.ExpectedLevel())
			if s.OnLevel != nil {
				s.OnLevel(reported + 1)
			}
		}
	})
}

// FixedDelay sleeps once and checks the status a single time.
type FixedDelay struct {
	Delay time.Duration
}

func (f FixedDelay) Wait(ctx context.Context, c *Controller) (ControllerStatus, error) {
	timer := time.NewTimer(f.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	status, err := c.Poll()
	if err != nil {
		return status, err
	}
	if !c.Settled() {
		return status, &TimeoutError{Level: c.Level(), Want: c.ExpectedLevel(), Elapsed: f.Delay}
	}
	return status, nil
}

func pollUntil(ctx context.Context, c *Controller, interval, timeout time.Duration, onLevel func(int)) (ControllerStatus, error) {
	start := time.Now()
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		status, err := c.Poll()
		if err != nil {
			return status, err
		}
		if onLevel != nil {
			onLevel(c.Level())
		}
		if c.Settled() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-deadline:
			return status, &TimeoutError{Level: c.Level(), Want: c.ExpectedLevel(), Elapsed: time.Since(start)}
		case <-time.After(interval):
		}
	}
}
