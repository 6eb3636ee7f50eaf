package extract

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/NirnayK/InvoxAI-sub000/internal/llm"
	"github.com/NirnayK/InvoxAI-sub000/internal/quota"
)

// Classification buckets an extraction failure for fallback decisions:
// retryable overload advances to the next candidate model, anything else
// aborts the file's fallback loop.
type Classification int

const (
	ClassOther Classification = iota
	ClassRateLimited
	ClassTimedOut
)

func (c Classification) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassTimedOut:
		return "timed_out"
	default:
		return "other"
	}
}

// AttemptTimeoutError reports that one (file, model) attempt hit the
// per-attempt deadline.
type AttemptTimeoutError struct {
	Model   string
	Timeout time.Duration
}

func (e *AttemptTimeoutError) Error() string {
	return fmt.Sprintf("model %s: attempt timed out after %s", e.Model, e.Timeout)
}

var reRateLimit = regexp.MustCompile(`(?i)rate limit|quota`)

// Classify buckets err: an HTTP 429, an exhausted daily quota, or a message
// mentioning rate limits/quotas is RateLimited; an attempt deadline is
// TimedOut; anything else is Other.
func Classify(err error) Classification {
	if err == nil {
		return ClassOther
	}
	var te *AttemptTimeoutError
	if errors.As(err, &te) {
		return ClassTimedOut
	}
	var de *quota.DailyLimitError
	if errors.As(err, &de) {
		return ClassRateLimited
	}
	if llm.StatusOf(err) == http.StatusTooManyRequests {
		return ClassRateLimited
	}
	if reRateLimit.MatchString(err.Error()) {
		return ClassRateLimited
	}
	return ClassOther
}
