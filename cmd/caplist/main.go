// Command caplist fetches recent cap events from a running capwatch
// instance and renders them as a fixed-width table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Default configuration constants.
const (
	defaultBaseURL = "http://localhost:9320"
	defaultDays    = 7
	defaultTimeout = 30 * time.Second
)

type capEntry struct {
	RSN       string `json:"rsn"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	AdminUser string `json:"admin_user"`
}

func main() {
	var (
		baseURL = flag.String("url", defaultBaseURL, "Base URL of the capwatch service")
		days    = flag.Int("days", defaultDays, "Window of days to list caps for")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	entries, err := fetchCaps(ctx, *baseURL, *days)
	if err != nil {
		os.Stderr.WriteString("failed to fetch caps: " + err.Error() + "\n")
		os.Exit(1)
	}

	render(os.Stdout, *days, entries)
}

func fetchCaps(ctx context.Context, baseURL string, days int) ([]capEntry, error) {
	url := baseURL + "/caps?days=" + strconv.Itoa(days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}

	var entries []capEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return entries, nil
}

func render(w *os.File, days int, entries []capEntry) {
	fmt.Fprintf(w, "Caps in the last %d day(s): %d\n\n", days, len(entries))
	if len(entries) == 0 {
		return
	}

	rsnWidth := len("RSN")
	for _, e := range entries {
		if len(e.RSN) > rsnWidth {
			rsnWidth = len(e.RSN)
		}
	}

	fmt.Fprintf(w, "%-*s  %-17s  %-6s  %s\n", rsnWidth, "RSN", "Capped At (UTC)", "Source", "Recorded By")
	for _, e := range entries {
		fmt.Fprintf(w, "%-*s  %-17s  %-6s  %s\n", rsnWidth, e.RSN, e.Timestamp, e.Source, e.AdminUser)
	}
}
