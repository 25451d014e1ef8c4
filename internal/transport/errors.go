package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrForbidden means the recipient blocked the bot or removed it.
	ErrForbidden = errors.New("transport: forbidden")
	// ErrInvalidRecipient means the chat does not exist or was deactivated.
	ErrInvalidRecipient = errors.New("transport: invalid recipient")
)

// RateLimitedError is returned when the transport asks the caller to back
// off for RetryAfter before trying again.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("transport: rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// RateLimited builds a *RateLimitedError for the given number of seconds.
func RateLimited(seconds int) error {
	return &RateLimitedError{RetryAfter: time.Duration(seconds) * time.Second}
}

// RetryAfter reports the back-off requested by err, if it is a rate limit.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsPermanent reports whether retrying err for the same recipient is pointless.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvalidRecipient)
}
