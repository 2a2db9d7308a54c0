// Package retry re-runs flaky upstream calls a bounded number of times with a fixed delay.
package retry

import (
	"log/slog"
	"time"

	"github.com/qepting91/social-scraper/internal/domain"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 2 * time.Second
)

// Retrier holds the attempt budget. The zero value uses the defaults.
//
// The delay between attempts is not interruptible; callers that need a deadline
// must put it on the operation's own context.
type Retrier struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      *slog.Logger

	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)

	sleep func(time.Duration)
}

// New returns a Retrier with the given budget.
func New(attempts int, delay time.Duration, logger *slog.Logger) *Retrier {
	return &Retrier{MaxAttempts: attempts, Delay: delay, Logger: logger}
}

// Do runs op until it succeeds, fails terminally, or the attempts run out.
// The last error is returned as-is.
func (r *Retrier) Do(op func() error) error {
	_, err := Value(r, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](r *Retrier, op func() (T, error)) (T, error) {
	attempts, delay, logger, sleep := r.settings()

	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err = op()
		if err == nil {
			return v, nil
		}
		if !domain.IsTransient(err) || attempt == attempts {
			return v, err
		}
		logger.Warn("attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.String("err", err.Error()),
		)
		if r != nil && r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}
		sleep(delay)
	}
	return v, err
}

func (r *Retrier) settings() (int, time.Duration, *slog.Logger, func(time.Duration)) {
	attempts, delay := DefaultAttempts, DefaultDelay
	logger := slog.Default()
	sleep := time.Sleep
	if r == nil {
		return attempts, delay, logger, sleep
	}
	if r.MaxAttempts > 0 {
		attempts = r.MaxAttempts
	}
	if r.Delay > 0 {
		delay = r.Delay
	}
	if r.Logger != nil {
		logger = r.Logger
	}
	if r.sleep != nil {
		sleep = r.sleep
	}
	return attempts, delay, logger, sleep
}
