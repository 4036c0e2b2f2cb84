package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/capwatch/internal/adapters/http/api"
	"github.com/okian/capwatch/internal/domain/model"
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

// Mock implementations for testing
type mockDeps struct {
	recent    []model.CapEvent
	recentErr error

	manualRecorded bool
	manualErr      error
	manualRSN      string
	manualTS       time.Time
	manualAdmin    string
}

func (m *mockDeps) RecentCaps(ctx context.Context, since time.Time) ([]model.CapEvent, error) {
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	var out []model.CapEvent
	for _, e := range m.recent {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockDeps) RecordManualCap(ctx context.Context, rsn string, ts time.Time, adminUser string) (bool, error) {
	if m.manualErr != nil {
		return false, m.manualErr
	}
	m.manualRSN = rsn
	m.manualTS = ts
	m.manualAdmin = adminUser
	return m.manualRecorded, nil
}

type mockStats struct{}

func (m *mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newTestMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	srv := api.NewServer(deps, &mockStats{})
	srv.Register(context.Background(), mux)
	return mux
}

func TestHandleGetCaps(t *testing.T) {
	Convey("Given a server with recent cap events", t, func() {
		now := time.Now().UTC().Truncate(time.Minute)
		deps := &mockDeps{recent: []model.CapEvent{
			{RSN: "Zezima", Timestamp: now.Add(-2 * time.Hour), Source: model.SourceAuto},
			{RSN: "Forgotten One", Timestamp: now.Add(-30 * 24 * time.Hour), Source: model.SourceManual, ManualUser: "admin"},
		}}
		mux := newTestMux(deps)

		Convey("When requesting caps with the default window", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/caps", nil))

			Convey("Then only caps inside the last seven days come back", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var got []map[string]any
				So(json.NewDecoder(rec.Body).Decode(&got), ShouldBeNil)
				So(len(got), ShouldEqual, 1)
				So(got[0]["rsn"], ShouldEqual, "Zezima")
				So(got[0]["source"], ShouldEqual, "auto")
			})
		})

		Convey("When requesting a wider window", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/caps?days=60", nil))

			Convey("Then the older manual cap is included with its admin user", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var got []map[string]any
				So(json.NewDecoder(rec.Body).Decode(&got), ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[1]["source"], ShouldEqual, "manual")
				So(got[1]["admin_user"], ShouldEqual, "admin")
			})
		})

		Convey("When the days parameter is not a positive integer", func() {
			for _, q := range []string{"days=0", "days=-3", "days=abc"} {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/caps?"+q, nil))
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the days parameter exceeds the maximum", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/caps?days=1000", nil))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given a server whose store is failing", t, func() {
		deps := &mockDeps{recentErr: context.DeadlineExceeded}
		mux := newTestMux(deps)

		Convey("When requesting caps", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/caps", nil))

			Convey("Then the failure surfaces as a 500", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestHandlePostCap(t *testing.T) {
	Convey("Given a server accepting manual caps", t, func() {
		deps := &mockDeps{manualRecorded: true}
		mux := newTestMux(deps)

		Convey("When posting a manual cap with an explicit date", func() {
			body := `{"rsn": "Forgotten One", "date": "20-Aug-2026 18:30", "admin": "clan_admin"}`
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/caps", strings.NewReader(body)))

			Convey("Then it is recorded at the given instant", func() {
				So(rec.Code, ShouldEqual, http.StatusCreated)
				So(deps.manualRSN, ShouldEqual, "Forgotten One")
				So(deps.manualAdmin, ShouldEqual, "clan_admin")
				expected := time.Date(2026, time.August, 20, 18, 30, 0, 0, time.UTC)
				So(deps.manualTS.Equal(expected), ShouldBeTrue)

				var got map[string]any
				So(json.NewDecoder(rec.Body).Decode(&got), ShouldBeNil)
				So(got["status"], ShouldEqual, "recorded")
				So(got["duplicate"], ShouldEqual, false)
			})
		})

		Convey("When posting without a date", func() {
			before := time.Now().UTC()
			body := `{"rsn": "Zezima", "admin": "clan_admin"}`
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/caps", strings.NewReader(body)))

			Convey("Then the cap defaults to the current minute", func() {
				So(rec.Code, ShouldEqual, http.StatusCreated)
				So(deps.manualTS.After(before.Add(-time.Minute)), ShouldBeTrue)
				So(deps.manualTS.Second(), ShouldEqual, 0)
			})
		})

		Convey("When required fields are missing", func() {
			for _, body := range []string{
				`{"date": "20-Aug-2026 18:30", "admin": "clan_admin"}`,
				`{"rsn": "Zezima", "date": "20-Aug-2026 18:30"}`,
				`{not json`,
			} {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/caps", strings.NewReader(body)))
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the date is malformed", func() {
			body := `{"rsn": "Zezima", "date": "2026-08-20T18:30:00Z", "admin": "clan_admin"}`
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/caps", strings.NewReader(body)))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given a server where the cap already exists", t, func() {
		deps := &mockDeps{manualRecorded: false}
		mux := newTestMux(deps)

		Convey("When posting the duplicate", func() {
			body := `{"rsn": "Zezima", "date": "20-Aug-2026 18:30", "admin": "clan_admin"}`
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/caps", strings.NewReader(body)))

			Convey("Then the response reports a duplicate with 200", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var got map[string]any
				So(json.NewDecoder(rec.Body).Decode(&got), ShouldBeNil)
				So(got["status"], ShouldEqual, "duplicate")
				So(got["duplicate"], ShouldEqual, true)
			})
		})
	})
}

func TestHandleStats(t *testing.T) {
	Convey("Given a server with a stats provider", t, func() {
		mux := newTestMux(&mockDeps{})

		Convey("When requesting stats", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

			Convey("Then the provider's stats are returned as JSON", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var got map[string]any
				So(json.NewDecoder(rec.Body).Decode(&got), ShouldBeNil)
				So(got["started"], ShouldEqual, true)
			})
		})
	})
}

func TestHandleHealth(t *testing.T) {
	Convey("Given a server", t, func() {
		mux := newTestMux(&mockDeps{})

		Convey("When probing the health endpoint", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			Convey("Then it serves the metrics registry", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}
