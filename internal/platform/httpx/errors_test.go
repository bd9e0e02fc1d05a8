package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

var errGone = errors.New("gone")

type codedError struct{ code string }

func (e *codedError) Error() string { return "coded " + e.code }

func TestRespondErrorRules(t *testing.T) {
	rules := []ErrorRule{
		Is(errGone, http.StatusGone, "Gone"),
		As[*codedError](http.StatusTeapot, "Coded"),
	}
	cases := []struct {
		err     error
		status  int
		title   string
		matched bool
	}{
		{fmt.Errorf("lookup: %w", errGone), http.StatusGone, "Gone", true},
		{fmt.Errorf("wrap: %w", &codedError{code: "x"}), http.StatusTeapot, "Coded", true},
		{context.Canceled, http.StatusServiceUnavailable, "Request Cancelled", true},
		{errors.New("database exploded"), http.StatusInternalServerError, "Internal Error", false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		matched := RespondError(rec, tc.err, rules...)
		if matched != tc.matched || rec.Code != tc.status {
			t.Fatalf("%v: got %d matched=%v", tc.err, rec.Code, matched)
		}
		var p ProblemDetail
		if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
			t.Fatalf("decode problem: %v", err)
		}
		if p.Title != tc.title {
			t.Fatalf("%v: expected title %q got %q", tc.err, tc.title, p.Title)
		}
		if !tc.matched && p.Detail != "" {
			t.Fatalf("internal errors must not leak detail, got %q", p.Detail)
		}
	}
}

func TestRateLimitKeyFallsBackToIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	key, err := RateLimitKey(req)
	if err != nil || key != "ip:10.0.0.7" {
		t.Fatalf("unexpected key %q err %v", key, err)
	}
}
