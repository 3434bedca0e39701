package provider

import (
	"errors"
	"strings"
)

// RateLimitPrefix marks messages of vendor rate-limit failures.
const RateLimitPrefix = "RATE_LIMITED: "

var (
	ErrRateLimited       = errors.New("provider rate limited")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrUnavailable       = errors.New("provider temporarily unavailable")
)

// RateLimitError is returned once a vendor keeps answering 429 after the
// backend's own retries.
type RateLimitError struct {
	Provider   string
	RetryDelay string // vendor hint, e.g. "37s"; empty when absent
	Message    string
}

func (e *RateLimitError) Error() string {
	return RateLimitPrefix + e.Message
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// UserMessage is the error text without the condition prefix.
func (e *RateLimitError) UserMessage() string {
	return strings.TrimPrefix(e.Error(), RateLimitPrefix)
}
