package runemetrics

import (
	"errors"
	"fmt"
	"net/http"
)

// profilePrivateError is the sentinel value of the profile endpoint's "error"
// field when a member's activity log is private.
const profilePrivateError = "PROFILE_PRIVATE"

// StatusError reports a non-2xx response from an upstream endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected upstream status %d %s", e.Code, http.StatusText(e.Code))
}

// IsRateLimited reports whether err is an HTTP 429 from upstream. Rate-limit
// rejections are retried in place by the poller; all other fetch errors count
// toward its failure ceiling.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}
