package errors

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// inbound path
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrAliasNotFound    = errors.New("alias not found for recipient")
	ErrAliasNotActive   = errors.New("alias is not active")

	// lifecycle
	ErrAliasAlreadyReplaced = errors.New("alias already has a replacement")
	ErrReplaceNotEligible   = errors.New("alias must be killed, leaked or breach-flagged before replacement")
	ErrAliasExists          = errors.New("alias address already exists")
	ErrInvalidTransition    = errors.New("invalid alias status transition")

	// external collaborators
	ErrProviderFailure = errors.New("mail provider send failed")
	ErrSweepInProgress = errors.New("breach sweep already running")
)

// RateLimitedError signals an upstream 429. It is distinct from a generic
// external-service failure: callers back off and skip rather than record a
// failure.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
