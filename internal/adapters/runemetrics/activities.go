package runemetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/okian/capwatch/internal/domain/model"
	"github.com/okian/capwatch/pkg/logger"
)

// profileResponse mirrors the subset of the RuneMetrics profile payload the
// poller cares about. Activities stays a pointer so a missing field can be
// told apart from an empty list.
type profileResponse struct {
	Error      string             `json:"error"`
	Activities *[]profileActivity `json:"activities"`
}

// profileActivity uses pointer fields so a structurally broken element can be
// skipped on its own instead of failing the whole member.
type profileActivity struct {
	Date    *string `json:"date"`
	Details *string `json:"details"`
	Text    *string `json:"text"`
}

// Activities fetches the recent activity log for one member. Private or
// malformed profiles degrade to an empty list with a log entry; only
// HTTP-level failures are returned as errors, with 429 distinguishable via
// IsRateLimited for the poller's backoff handling.
func (c *Client) Activities(ctx context.Context, rsn string) ([]model.Activity, error) {
	reqURL := c.profileURL + "?user=" + url.QueryEscape(rsn) +
		"&activities=" + strconv.Itoa(c.activityLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile for %s: %w", rsn, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("fetch profile for %s: %w", rsn, &StatusError{Code: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read profile response for %s: %w", rsn, err)
	}

	var profile profileResponse
	if err := json.Unmarshal(body, &profile); err != nil {
		c.logger.Warn(ctx, "unparseable profile response",
			logger.String("rsn", rsn),
			logger.String("body", string(body)),
		)
		return nil, nil
	}

	if profile.Error != "" {
		if profile.Error == profilePrivateError {
			c.logger.Warn(ctx, "activity log is private", logger.String("rsn", rsn))
		} else {
			c.logger.Error(ctx, "profile endpoint returned an error",
				logger.String("rsn", rsn),
				logger.String("upstream_error", profile.Error),
			)
		}
		return nil, nil
	}

	if profile.Activities == nil {
		c.logger.Warn(ctx, "no activities in profile response",
			logger.String("rsn", rsn),
			logger.String("body", string(body)),
		)
		return nil, nil
	}

	activities := make([]model.Activity, 0, len(*profile.Activities))
	for _, a := range *profile.Activities {
		if a.Date == nil || a.Details == nil || a.Text == nil {
			c.logger.Warn(ctx, "skipping activity with missing fields", logger.String("rsn", rsn))
			continue
		}
		activities = append(activities, model.Activity{
			Date:    *a.Date,
			Details: *a.Details,
			Text:    *a.Text,
		})
	}
	return activities, nil
}
