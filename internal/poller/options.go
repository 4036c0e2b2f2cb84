package poller

import (
	"context"
	"time"

	"github.com/okian/capwatch/pkg/logger"
)

// Option applies a configuration option to the Poller.
type Option func(*Poller)

// WithPaceInterval sets the fixed delay before each upstream request.
func WithPaceInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.pace = d
		}
	}
}

// WithInitialBackoff sets the backoff delay applied on the first rate-limit
// rejection of a streak.
func WithInitialBackoff(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.initialBackoff = d
		}
	}
}

// WithMaxBackoff sets the backoff ceiling; a run aborts once doubling would
// push the delay past it.
func WithMaxBackoff(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.maxBackoff = d
		}
	}
}

// WithMaxFailures sets how many failed member fetches a run tolerates before
// aborting.
func WithMaxFailures(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxFailures = n
		}
	}
}

// WithMaxSuccesses caps how many members a run polls. Zero means the whole
// roster; used for bounded test and manual runs.
func WithMaxSuccesses(n int) Option {
	return func(p *Poller) {
		if n >= 0 {
			p.maxSuccesses = n
		}
	}
}

// WithSleep replaces the cancellation-aware sleep. Tests use it to record
// pacing and backoff delays without waiting them out.
func WithSleep(fn func(ctx context.Context, d time.Duration) bool) Option {
	return func(p *Poller) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithLogger sets a custom logger for the poller.
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}
