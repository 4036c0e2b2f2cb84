package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/capwatch/internal/adapters/repository"
	service "github.com/okian/capwatch/internal/app"
	"github.com/okian/capwatch/internal/domain/model"
	"github.com/okian/capwatch/internal/poller"
	"github.com/okian/capwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// stubRunner returns canned batches per invocation and records how often it
// ran. An optional block channel holds runs open to exercise skip behavior.
type stubRunner struct {
	mu      sync.Mutex
	runs    int
	batches [][]model.CapEvent
	errs    []error
	block   chan struct{}
}

func (r *stubRunner) Run(ctx context.Context) ([]model.CapEvent, error) {
	r.mu.Lock()
	n := r.runs
	r.runs++
	r.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}

	var events []model.CapEvent
	if n < len(r.batches) {
		events = r.batches[n]
	}
	var err error
	if n < len(r.errs) {
		err = r.errs[n]
	}
	return events, err
}

func (r *stubRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func openTestStore(t *testing.T) repository.Store {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "caps.db"))
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	return store
}

func capAt(rsn string, ts time.Time) model.CapEvent {
	return model.CapEvent{RSN: rsn, Timestamp: ts, Source: model.SourceAuto}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		store := openTestStore(t)
		runner := &stubRunner{}
		svc := service.New(store, runner, service.WithPollInterval(time.Hour))

		Convey("When starting and stopping it", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
			})

			Convey("And starting twice should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And after stopping it should be marked as stopped", func() {
				svc.Stop()
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, false)

				// A second Stop must be harmless.
				svc.Stop()
			})
		})
	})
}

func TestService_FirstRunImmediate(t *testing.T) {
	Convey("Given a service whose runner finds one cap event", t, func() {
		store := openTestStore(t)
		ts := time.Date(2026, 8, 20, 18, 30, 0, 0, time.UTC)
		runner := &stubRunner{batches: [][]model.CapEvent{{capAt("Zezima", ts)}}}
		svc := service.New(store, runner, service.WithPollInterval(time.Hour))

		Convey("When the service starts", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then the first run fires without waiting for the interval", func() {
				ok := waitFor(t, 5*time.Second, func() bool { return runner.runCount() >= 1 })
				So(ok, ShouldBeTrue)
			})

			Convey("And the batch is committed to the store", func() {
				ok := waitFor(t, 5*time.Second, func() bool {
					events, err := svc.RecentCaps(ctx, time.Time{})
					return err == nil && len(events) == 1
				})
				So(ok, ShouldBeTrue)

				events, err := svc.RecentCaps(ctx, time.Time{})
				So(err, ShouldBeNil)
				So(events[0].RSN, ShouldEqual, "Zezima")
				So(events[0].Timestamp.Equal(ts), ShouldBeTrue)
			})
		})
	})
}

func TestService_IntervalRuns(t *testing.T) {
	Convey("Given a service on a very short poll interval", t, func() {
		store := openTestStore(t)
		runner := &stubRunner{}
		svc := service.New(store, runner, service.WithPollInterval(20*time.Millisecond))

		Convey("When it runs for a while", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then multiple runs fire", func() {
				ok := waitFor(t, 5*time.Second, func() bool { return runner.runCount() >= 3 })
				So(ok, ShouldBeTrue)
			})
		})
	})
}

func TestService_SkipWhenInFlight(t *testing.T) {
	Convey("Given a runner that blocks until released", t, func() {
		store := openTestStore(t)
		runner := &stubRunner{block: make(chan struct{})}
		svc := service.New(store, runner, service.WithPollInterval(20*time.Millisecond))

		Convey("When interval firings arrive while a run is in flight", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)

			// Let several interval firings pass while the first run holds.
			ok := waitFor(t, 5*time.Second, func() bool {
				stats := svc.GetStats()
				skipped, _ := stats["runsSkipped"].(int)
				return skipped >= 2
			})
			runsWhileBlocked := runner.runCount()
			close(runner.block)
			svc.Stop()

			Convey("Then those firings are skipped, not queued", func() {
				So(ok, ShouldBeTrue)
				So(runsWhileBlocked, ShouldEqual, 1)
			})
		})
	})
}

func TestService_PartialBatchCommitted(t *testing.T) {
	Convey("Given a runner that aborts early but returns a partial batch", t, func() {
		store := openTestStore(t)
		ts := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)
		runner := &stubRunner{
			batches: [][]model.CapEvent{{capAt("Good Guy", ts)}},
			errs:    []error{poller.ErrBackoffExceeded},
		}
		svc := service.New(store, runner, service.WithPollInterval(time.Hour))

		Convey("When the run completes", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then the partial batch still reaches the store", func() {
				ok := waitFor(t, 5*time.Second, func() bool {
					events, err := svc.RecentCaps(ctx, time.Time{})
					return err == nil && len(events) == 1
				})
				So(ok, ShouldBeTrue)
			})
		})
	})
}

func TestService_RecentCapsNewestFirst(t *testing.T) {
	Convey("Given a store holding caps at different instants", t, func() {
		store := openTestStore(t)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(store.Init(ctx), ShouldBeNil)

		older := time.Date(2026, 8, 19, 8, 0, 0, 0, time.UTC)
		newer := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
		_, err := store.InsertBatch(ctx, []model.CapEvent{
			capAt("Old Capper", older),
			capAt("New Capper", newer),
		})
		So(err, ShouldBeNil)

		runner := &stubRunner{}
		svc := service.New(store, runner)

		Convey("When querying recent caps", func() {
			events, err := svc.RecentCaps(ctx, time.Time{})

			Convey("Then events come back newest first", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 2)
				So(events[0].RSN, ShouldEqual, "New Capper")
				So(events[1].RSN, ShouldEqual, "Old Capper")
			})
		})
	})
}

func TestService_RecordManualCap(t *testing.T) {
	Convey("Given a started service", t, func() {
		store := openTestStore(t)
		runner := &stubRunner{}
		svc := service.New(store, runner, service.WithPollInterval(time.Hour))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When recording a manual cap", func() {
			ts := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
			recorded, err := svc.RecordManualCap(ctx, "Forgotten One", ts, "admin")

			Convey("Then it is recorded once", func() {
				So(err, ShouldBeNil)
				So(recorded, ShouldBeTrue)
			})

			Convey("And a repeat of the same instant is a duplicate", func() {
				again, err := svc.RecordManualCap(ctx, "Forgotten One", ts, "admin")
				So(err, ShouldBeNil)
				So(again, ShouldBeFalse)
			})
		})
	})
}
