package ratelimiter

// RateLimiter is the interface for rate limiting. Allow reports whether the
// current call is admitted; admitting a call counts it against the window.
type RateLimiter interface {
	Allow() bool
}
