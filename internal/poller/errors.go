package poller

import "errors"

// Sentinel kinds for run-ending conditions. Events accumulated before the
// abort accompany these errors and must still be committed.
var (
	ErrBackoffExceeded = errors.New("rate limit backoff ceiling exceeded")
	ErrTooManyFailures = errors.New("member failure ceiling exceeded")
)
