// Package poller implements the sequential ingestion run over a clan roster.
package poller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okian/capwatch/internal/adapters/runemetrics"
	"github.com/okian/capwatch/internal/domain/classify"
	"github.com/okian/capwatch/internal/domain/model"
	"github.com/okian/capwatch/pkg/logger"
	"github.com/okian/capwatch/pkg/metrics"
)

// Default pacing and backoff constants, in line with the upstream's observed
// soft limit of ~20 requests/minute.
const (
	defaultPaceInterval   = 3 * time.Second
	defaultInitialBackoff = 10 * time.Second
	defaultMaxBackoff     = 100 * time.Second
	defaultMaxFailures    = 5
)

// Fetcher is the upstream surface the poller needs. Implemented by
// runemetrics.Client.
type Fetcher interface {
	Members(ctx context.Context, clanName string) ([]model.ClanMember, error)
	Activities(ctx context.Context, rsn string) ([]model.Activity, error)
}

// sleepFunc blocks for d or until ctx is done; it returns false when the
// sleep was cut short by cancellation. Injectable for tests.
type sleepFunc func(ctx context.Context, d time.Duration) bool

// Poller walks the clan roster one member at a time, classifying each
// member's activity log into cap events. Members are deliberately polled
// sequentially: the upstream rate limit is global, so concurrency would only
// trade pacing sleeps for backoff sleeps.
type Poller struct {
	fetcher  Fetcher
	clanName string

	pace           time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxFailures    int
	maxSuccesses   int

	sleep  sleepFunc
	logger logger.Logger
}

// New creates a Poller for clanName with configuration options.
func New(fetcher Fetcher, clanName string, opts ...Option) *Poller {
	p := &Poller{
		fetcher:        fetcher,
		clanName:       clanName,
		pace:           defaultPaceInterval,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		maxFailures:    defaultMaxFailures,
		sleep:          sleepCtx,
		logger:         logger.Get().Named("poller"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run executes one ingestion run. It returns every cap event discovered
// before the run ended, even when the run ends early: a partial batch is
// valid and the caller is expected to commit it. The error is non-nil only
// for conditions that ended the run before the roster was exhausted; a
// cooperative cancellation is not an error.
func (p *Poller) Run(ctx context.Context) ([]model.CapEvent, error) {
	runID := uuid.New().String()
	log := p.logger

	log.Info(ctx, "fetching clan roster",
		logger.String("run_id", runID),
		logger.String("clan", p.clanName),
	)
	members, err := p.fetcher.Members(ctx, p.clanName)
	if err != nil {
		log.Error(ctx, "roster fetch failed; abandoning run",
			logger.String("run_id", runID),
			logger.Error(err),
		)
		metrics.RecordRunFailed()
		return nil, err
	}
	metrics.UpdateRosterSize(len(members))

	var (
		events    []model.CapEvent
		backoff   = p.initialBackoff
		successes int
		failures  int
		index     int
	)

	for index < len(members) {
		if ctx.Err() != nil {
			log.Info(ctx, "run cancelled; returning partial batch",
				logger.String("run_id", runID),
				logger.Int("events", len(events)),
			)
			return events, nil
		}

		// Pace every request to stay under the upstream soft limit.
		if !p.sleep(ctx, p.pace) {
			return events, nil
		}

		member := members[index]
		log.Debug(ctx, "fetching activity log",
			logger.String("run_id", runID),
			logger.String("rsn", member.RSN),
		)

		activities, err := p.fetcher.Activities(ctx, member.RSN)
		if err != nil {
			if runemetrics.IsRateLimited(err) {
				metrics.RecordRateLimitHit()
				log.Warn(ctx, "rate limited; backing off",
					logger.String("run_id", runID),
					logger.Duration("backoff", backoff),
				)
				if !p.sleep(ctx, backoff) {
					return events, nil
				}
				backoff *= 2
				if backoff > p.maxBackoff {
					log.Error(ctx, "backoff ceiling exceeded; aborting run",
						logger.String("run_id", runID),
						logger.Duration("backoff", backoff),
					)
					return events, ErrBackoffExceeded
				}
				// Same member is retried on the next iteration.
				continue
			}

			failures++
			metrics.RecordMemberFailure()
			log.Error(ctx, "activity fetch failed",
				logger.String("run_id", runID),
				logger.String("rsn", member.RSN),
				logger.Int("failures", failures),
				logger.Error(err),
			)
			if failures > p.maxFailures {
				log.Error(ctx, "failure ceiling exceeded; aborting run",
					logger.String("run_id", runID),
				)
				return events, ErrTooManyFailures
			}
			// Skip this member; one broken profile must not block the clan.
			index++
			continue
		}

		events = append(events, p.capEvents(ctx, member.RSN, activities)...)
		successes++
		metrics.RecordMemberPolled()
		backoff = p.initialBackoff
		index++

		if p.maxSuccesses > 0 && successes >= p.maxSuccesses {
			log.Info(ctx, "success cap reached; stopping early",
				logger.String("run_id", runID),
				logger.Int("successes", successes),
			)
			break
		}
	}

	log.Info(ctx, "run finished",
		logger.String("run_id", runID),
		logger.Int("members", len(members)),
		logger.Int("polled", successes),
		logger.Int("events", len(events)),
	)
	return events, nil
}

// capEvents classifies activities into cap events for one member. An
// unparseable date fails only that single activity.
func (p *Poller) capEvents(ctx context.Context, rsn string, activities []model.Activity) []model.CapEvent {
	var events []model.CapEvent
	for _, a := range activities {
		if !classify.IsCapEvent(a) {
			continue
		}
		ts, err := classify.ParseEventTime(a.Date)
		if err != nil {
			p.logger.Warn(ctx, "skipping cap event with unparseable date",
				logger.String("rsn", rsn),
				logger.String("date", a.Date),
			)
			continue
		}
		events = append(events, model.CapEvent{
			RSN:       rsn,
			Timestamp: ts,
			Source:    model.SourceAuto,
		})
	}
	if len(events) > 0 {
		metrics.RecordCapEventsFound(len(events))
	}
	return events
}

// sleepCtx is the default cancellation-aware sleep.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
