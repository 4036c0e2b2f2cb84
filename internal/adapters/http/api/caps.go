// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/capwatch/internal/domain/classify"
)

// Query defaults and bounds for GET /caps.
const (
	defaultRecentDays = 7
	maxRecentDays     = 365
)

// CapsHandler handles cap event reads and manual overrides.
type CapsHandler struct {
	deps Dependencies
}

// NewCapsHandler creates a new caps handler.
func NewCapsHandler(deps Dependencies) *CapsHandler {
	return &CapsHandler{deps: deps}
}

// HandleCaps dispatches GET /caps and POST /caps.
func (h *CapsHandler) HandleCaps(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetCaps(w, r)
	case http.MethodPost:
		h.handlePostCap(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleGetCaps handles GET /caps?days=N requests.
func (h *CapsHandler) handleGetCaps(w http.ResponseWriter, r *http.Request) {
	days := defaultRecentDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		n, err := strconv.Atoi(daysStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request",
				fmt.Errorf("invalid days %q: %w", daysStr, ErrBadRequest))
			return
		}
		if n > maxRecentDays {
			writeError(w, http.StatusBadRequest, "days_exceeded",
				fmt.Errorf("days must be at most %d: %w", maxRecentDays, ErrBadRequest))
			return
		}
		days = n
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	events, err := h.deps.RecentCaps(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	out := make([]capResponse, 0, len(events))
	for _, e := range events {
		out = append(out, capResponse{
			RSN:       e.RSN,
			Timestamp: classify.FormatEventTime(e.Timestamp),
			Source:    string(e.Source),
			AdminUser: e.ManualUser,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// manualCapRequest is the body of POST /caps. Date is optional and uses the
// same layout the activity feed uses; it defaults to the current minute.
type manualCapRequest struct {
	RSN   string `json:"rsn"`
	Date  string `json:"date"`
	Admin string `json:"admin"`
}

func (m manualCapRequest) validate() error {
	switch {
	case strings.TrimSpace(m.RSN) == "":
		return fmt.Errorf("missing rsn: %w", ErrBadRequest)
	case strings.TrimSpace(m.Admin) == "":
		return fmt.Errorf("missing admin: %w", ErrBadRequest)
	}
	return nil
}

// handlePostCap handles POST /caps requests recording a manual cap.
func (h *CapsHandler) handlePostCap(w http.ResponseWriter, r *http.Request) {
	var req manualCapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Errorf("invalid body: %w", ErrBadRequest))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ts := time.Now().UTC().Truncate(time.Minute)
	if req.Date != "" {
		parsed, err := classify.ParseEventTime(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request",
				fmt.Errorf("invalid date %q: %w", req.Date, ErrBadRequest))
			return
		}
		ts = parsed
	}

	recorded, err := h.deps.RecordManualCap(r.Context(), strings.TrimSpace(req.RSN), ts, strings.TrimSpace(req.Admin))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	status := http.StatusCreated
	if !recorded {
		status = http.StatusOK
	}
	writeJSON(w, status, manualCapResponse{
		Status:    statusText(recorded),
		Duplicate: !recorded,
	})
}

func statusText(recorded bool) string {
	if recorded {
		return "recorded"
	}
	return "duplicate"
}
