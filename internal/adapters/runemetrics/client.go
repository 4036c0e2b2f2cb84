// Package runemetrics fetches clan rosters and member activity logs from the
// RuneScape public web endpoints.
package runemetrics

import (
	"net/http"
	"time"

	"github.com/okian/capwatch/pkg/logger"
)

// Default client configuration constants.
const (
	defaultRosterURL     = "https://secure.runescape.com/m=clan-hiscores/members_lite.ws"
	defaultProfileURL    = "https://apps.runescape.com/runemetrics/profile/profile"
	defaultActivityLimit = 20
	defaultHTTPTimeout   = 30 * time.Second
)

// Client performs HTTP GETs against the roster and profile endpoints.
type Client struct {
	httpClient    *http.Client
	rosterURL     string
	profileURL    string
	activityLimit int
	logger        logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithRosterURL overrides the clan hiscores listing endpoint.
func WithRosterURL(url string) Option {
	return func(cl *Client) {
		if url != "" {
			cl.rosterURL = url
		}
	}
}

// WithProfileURL overrides the per-member profile endpoint.
func WithProfileURL(url string) Option {
	return func(cl *Client) {
		if url != "" {
			cl.profileURL = url
		}
	}
}

// WithActivityLimit sets how many recent activities are requested per member.
func WithActivityLimit(limit int) Option {
	return func(cl *Client) {
		if limit > 0 {
			cl.activityLimit = limit
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient creates a new upstream client with configuration options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		rosterURL:     defaultRosterURL,
		profileURL:    defaultProfileURL,
		activityLimit: defaultActivityLimit,
		logger:        logger.Get().Named("runemetrics"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}
