// Package service provides the core business service that owns the ingestion
// schedule and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/capwatch/internal/adapters/repository"
	"github.com/okian/capwatch/internal/domain/model"
	"github.com/okian/capwatch/pkg/logger"
	"github.com/okian/capwatch/pkg/metrics"
)

// Default orchestration constants.
const (
	defaultPollInterval    = 15 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
	commitTimeout          = 30 * time.Second
)

// Runner executes one ingestion run. Implemented by poller.Poller. Events
// returned alongside an error are a valid partial batch and are committed.
type Runner interface {
	Run(ctx context.Context) ([]model.CapEvent, error)
}

// Service drives ingestion runs on a fixed interval with at most one run in
// flight, and serves the read path against the cap event store.
type Service struct {
	mu sync.Mutex

	store  repository.Store
	runner Runner

	pollInterval    time.Duration
	shutdownTimeout time.Duration

	started   bool
	stopCh    chan struct{}
	loopDone  chan struct{}
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	inFlight  bool

	// Stats, guarded by mu.
	runsCompleted int
	runsSkipped   int
	lastRunAt     time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPollInterval sets the wall-clock interval between ingestion runs.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for an in-flight run.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service around an opened store and a runner.
func New(store repository.Store, runner Runner, opts ...Option) *Service {
	s := &Service{
		store:           store,
		runner:          runner,
		pollInterval:    defaultPollInterval,
		shutdownTimeout: defaultShutdownTimeout,
		stopCh:          make(chan struct{}),
		loopDone:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start ensures the store schema and launches the ingestion loop. The first
// run fires immediately; subsequent runs follow the poll interval.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if err := s.store.Init(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel

	go s.loop(runCtx)

	s.started = true
	s.logger.Info(ctx, "capwatch service started",
		logger.Duration("poll_interval", s.pollInterval),
	)
	return nil
}

// Stop cancels any in-flight run, waits up to the shutdown timeout for it to
// observe the signal, and closes the store. A run that does not exit in time
// is logged as a hard error; shutdown proceeds regardless.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.runCancel()
	s.mu.Unlock()

	ctx := context.Background()
	<-s.loopDone

	waited := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(s.shutdownTimeout):
		s.logger.Error(ctx, "timed out waiting for ingestion run to exit",
			logger.Duration("timeout", s.shutdownTimeout),
		)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "closing store failed", logger.Error(err))
	}
	s.logger.Info(ctx, "capwatch service stopped")
}

// loop fires ingestion runs until stopped.
func (s *Service) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.startRun(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.startRun(ctx)
		}
	}
}

// startRun launches one ingestion run unless the previous one is still
// executing; a busy firing is skipped entirely, never queued.
func (s *Service) startRun(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		s.runsSkipped++
		s.mu.Unlock()
		metrics.RecordRunSkipped()
		s.logger.Warn(ctx, "previous ingestion run still in flight; skipping")
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		defer func() {
			s.mu.Lock()
			s.inFlight = false
			s.mu.Unlock()
		}()
		s.run(ctx)
	}()
}

// run executes the poller and commits its batch. Partial batches from
// aborted runs are committed too; the store's dedupe makes repeats harmless.
func (s *Service) run(ctx context.Context) {
	start := time.Now()

	events, err := s.runner.Run(ctx)
	if err != nil && len(events) == 0 {
		s.logger.Error(ctx, "ingestion run failed", logger.Error(err))
		return
	}
	if err != nil {
		s.logger.Error(ctx, "ingestion run aborted early; committing partial batch",
			logger.Int("events", len(events)),
			logger.Error(err),
		)
	}

	// The run context may already be cancelled (shutdown); the batch is
	// committed under its own deadline so gathered events are never lost.
	commitCtx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	inserted, err := s.store.InsertBatch(commitCtx, events)
	if err != nil {
		s.logger.Error(ctx, "committing cap events failed",
			logger.Int("events", len(events)),
			logger.Error(err),
		)
		return
	}

	duplicates := int64(len(events)) - inserted
	metrics.RecordRun(time.Since(start).Seconds())
	metrics.RecordCapEventsInserted(inserted)
	metrics.RecordCapEventsDuplicate(duplicates)
	metrics.UpdateLastRunUnix(time.Now().Unix())

	s.mu.Lock()
	s.runsCompleted++
	s.lastRunAt = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info(ctx, "ingestion run committed",
		logger.Int("events", len(events)),
		logger.Int64("inserted", inserted),
		logger.Int64("duplicates", duplicates),
		logger.Duration("duration", time.Since(start)),
	)
}

// RecentCaps returns all cap events at or after since, newest first.
func (s *Service) RecentCaps(ctx context.Context, since time.Time) ([]model.CapEvent, error) {
	events, err := s.store.RecentSince(ctx, since)
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}

// RecordManualCap records an admin override cap event.
func (s *Service) RecordManualCap(ctx context.Context, rsn string, ts time.Time, adminUser string) (bool, error) {
	return s.store.RecordManualCap(ctx, rsn, ts, adminUser)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"pollInterval":  s.pollInterval.String(),
		"runInFlight":   s.inFlight,
		"runsCompleted": s.runsCompleted,
		"runsSkipped":   s.runsSkipped,
	}
	if !s.lastRunAt.IsZero() {
		stats["lastRunAt"] = s.lastRunAt.Format(time.RFC3339)
	}
	return stats
}
