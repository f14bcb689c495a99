package providers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"google.golang.org/genai"
)

func TestIsOverloaded(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"http 429", &HTTPError{Status: 429, Body: "slow down"}, true},
		{"http 503", &HTTPError{Status: 503}, true},
		{"http 529", &HTTPError{Status: 529}, true},
		{"http 500 overloaded body", &HTTPError{Status: 500, Body: `{"error":"Overloaded"}`}, true},
		{"http 400", &HTTPError{Status: 400, Body: "bad request"}, false},
		{"wrapped http 429", fmt.Errorf("call: %w", &HTTPError{Status: 429}), true},
		{"genai resource exhausted", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true},
		{"genai pointer unavailable", &genai.APIError{Code: 503, Status: "UNAVAILABLE"}, true},
		{"genai invalid argument", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "bad"}, false},
		{"plain text quota", errors.New("You exceeded your current quota"), true},
		{"plain other", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOverloaded(tt.err); got != tt.want {
				t.Fatalf("IsOverloaded(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSuggestedWait(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   time.Duration
		wantOK bool
	}{
		{"retry-after header", &HTTPError{Status: 429, RetryAfter: 20 * time.Second}, 20 * time.Second, true},
		{"text 2m30s", errors.New("model busy, please retry in 2m30s"), 2*time.Minute + 30*time.Second, true},
		{"text fractional", errors.New("Please retry in 51.417s."), 51417 * time.Millisecond, true},
		{"retry info json", errors.New(`{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"17s"}`), 17 * time.Second, true},
		{
			"genai details",
			genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Details: []map[string]any{
				{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "42s"},
			}},
			42 * time.Second, true,
		},
		{"none", errors.New("overloaded"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SuggestedWait(tt.err)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("SuggestedWait = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("3"); got != 3*time.Second {
		t.Fatalf("expected 3s, got: %v", got)
	}
	if got := ParseRetryAfter(""); got != 0 {
		t.Fatalf("expected 0 for empty header, got: %v", got)
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if got := ParseRetryAfter(future); got <= 0 || got > time.Minute {
		t.Fatalf("expected positive wait up to 1m for HTTP date, got: %v", got)
	}
}

func TestClassify(t *testing.T) {
	c := Classify(&HTTPError{Status: 429, RetryAfter: 5 * time.Second})
	if !c.Overloaded || !c.HasWait || c.Wait != 5*time.Second {
		t.Fatalf("unexpected classification: %+v", c)
	}
	c = Classify(errors.New("boom"))
	if c.Overloaded || c.HasWait {
		t.Fatalf("unexpected classification: %+v", c)
	}
}
