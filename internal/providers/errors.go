package providers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/nextlevelbuilder/chatterbox/internal/fallback"
)

// HTTPError is a non-200 response from an HTTP backend.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// ParseRetryAfter reads a Retry-After header given as seconds or an HTTP date.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

var (
	// "Please retry in 51.417s", "retry after 2m30s"
	retryInPattern = regexp.MustCompile(`(?i)retry (?:in|after) ((?:[0-9]+(?:\.[0-9]+)?(?:ms|h|m|s))+)`)
	// google.rpc.RetryInfo rendered as JSON: "retryDelay": "51s"
	retryDelayPattern = regexp.MustCompile(`"?retryDelay"?\s*:\s*"([0-9]+(?:\.[0-9]+)?s)"`)
)

// IsOverloaded reports whether err means the backend is rate limiting or out
// of capacity, so another model tier is worth trying.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Status {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, 529:
			return true
		}
		return overloadedText(httpErr.Body)
	}

	if apiErr, ok := asGenAIError(err); ok {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, 529:
			return true
		}
		switch apiErr.Status {
		case "RESOURCE_EXHAUSTED", "UNAVAILABLE":
			return true
		}
		return overloadedText(apiErr.Message)
	}

	return overloadedText(err.Error())
}

func overloadedText(s string) bool {
	s = strings.ToLower(s)
	for _, marker := range []string{
		"resource_exhausted", "rate_limit", "rate limit", "too many requests",
		"overloaded", "capacity", "quota",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// SuggestedWait extracts how long the backend asked us to wait, if it did.
func SuggestedWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter, true
	}

	if apiErr, ok := asGenAIError(err); ok {
		for _, d := range apiErr.Details {
			if v, ok := d["retryDelay"].(string); ok {
				if w, err := time.ParseDuration(v); err == nil && w > 0 {
					return w, true
				}
			}
		}
		if w, ok := waitFromText(apiErr.Message); ok {
			return w, true
		}
	}

	return waitFromText(err.Error())
}

func waitFromText(s string) (time.Duration, bool) {
	for _, re := range []*regexp.Regexp{retryDelayPattern, retryInPattern} {
		if m := re.FindStringSubmatch(s); m != nil {
			if w, err := time.ParseDuration(m[1]); err == nil && w > 0 {
				return w, true
			}
		}
	}
	return 0, false
}

// Classify adapts IsOverloaded and SuggestedWait for the fallback retrier.
func Classify(err error) fallback.Classification {
	wait, ok := SuggestedWait(err)
	return fallback.Classification{
		Overloaded: IsOverloaded(err),
		Wait:       wait,
		HasWait:    ok,
	}
}

// asGenAIError finds a genai API error whether it was returned by value or pointer.
func asGenAIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}
