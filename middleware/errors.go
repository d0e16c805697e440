package middleware

import "errors"

// ErrRateLimitExceeded is returned when a user sends too many turns in a window.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")
