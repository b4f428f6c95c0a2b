// Package ratelimit limits requests per client over a sliding window.
package ratelimit

import "time"

const (
	// DefaultLimit and DefaultWindow bound audit submissions per client IP.
	DefaultLimit  = 10
	DefaultWindow = 15 * time.Minute

	MessageTooManyRequests = "Too many requests, please try again later."
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// ExceededResponse is written with a 429.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
