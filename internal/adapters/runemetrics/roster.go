package runemetrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/capwatch/internal/domain/model"
	"github.com/okian/capwatch/pkg/logger"
)

// rosterFieldCount is the minimum number of comma-delimited fields a roster
// row must carry: rsn, rank, total xp, kills.
const rosterFieldCount = 4

// Members fetches the current roster for clanName. There is no partial
// roster: any HTTP-level failure is returned as an error and the caller is
// expected to abandon the run.
func (c *Client) Members(ctx context.Context, clanName string) ([]model.ClanMember, error) {
	reqURL := c.rosterURL + "?clanName=" + url.QueryEscape(clanName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build roster request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch clan roster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("fetch clan roster: %w", &StatusError{Code: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read roster response: %w", err)
	}

	return c.parseRoster(ctx, string(body)), nil
}

// parseRoster converts the newline-delimited listing body into members. The
// first line is a column header. Rows with too few fields are skipped
// silently (trailing blank lines); rows with unparseable numbers are skipped
// with a warning rather than failing the whole roster.
func (c *Client) parseRoster(ctx context.Context, body string) []model.ClanMember {
	rows := strings.Split(body, "\n")
	if len(rows) > 0 {
		rows = rows[1:]
	}

	members := make([]model.ClanMember, 0, len(rows))
	for _, row := range rows {
		fields := strings.Split(row, ",")
		if len(fields) < rosterFieldCount {
			continue
		}

		// The listing pads display names with non-breaking spaces.
		rsn := strings.TrimSpace(strings.ReplaceAll(fields[0], " ", " "))

		totalXP, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			c.logger.Warn(ctx, "skipping roster row with bad total xp",
				logger.String("rsn", rsn),
				logger.String("total_xp", fields[2]),
			)
			continue
		}
		kills, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
		if err != nil {
			c.logger.Warn(ctx, "skipping roster row with bad kill count",
				logger.String("rsn", rsn),
				logger.String("kills", fields[3]),
			)
			continue
		}

		members = append(members, model.ClanMember{
			RSN:     rsn,
			Rank:    strings.TrimSpace(fields[1]),
			TotalXP: totalXP,
			Kills:   kills,
		})
	}
	return members
}
