package fetch

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// FetchFailedError means the log store itself is unreachable: a request
// failed outright, or throttling outlasted the retry budget. It is the
// only fatal error the fetcher produces.
type FetchFailedError struct {
	Cause    error
	Attempts int
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *FetchFailedError) Unwrap() error {
	return e.Cause
}

// throttled reports whether err is a rate-limiting response worth retrying.
func throttled(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "ThrottlingException", "Throttling", "TooManyRequestsException", "RequestLimitExceeded":
		return true
	}
	return false
}
