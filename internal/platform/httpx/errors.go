// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"
)

// ErrorRule maps a class of domain errors onto a problem response.
type ErrorRule struct {
	Status int
	Title  string
	Match  func(error) bool
}

// Is builds a rule for errors wrapping target.
func Is(target error, status int, title string) ErrorRule {
	return ErrorRule{Status: status, Title: title, Match: func(err error) bool { return errors.Is(err, target) }}
}

// As builds a rule for errors whose chain holds a T.
func As[T error](status int, title string) ErrorRule {
	return ErrorRule{Status: status, Title: title, Match: func(err error) bool {
		var target T
		return errors.As(err, &target)
	}}
}

var cancelled = ErrorRule{
	Status: http.StatusServiceUnavailable,
	Title:  "Request Cancelled",
	Match: func(err error) bool {
		return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	},
}

// RespondError writes the problem of the first matching rule, then a 503 for
// cancelled requests. Anything else is a 500 without detail, and false is
// returned so the caller can log it.
func RespondError(w http.ResponseWriter, err error, rules ...ErrorRule) bool {
	for _, rule := range rules {
		if rule.Match(err) {
			Problem(w, rule.Status, rule.Title, err.Error())
			return true
		}
	}
	if cancelled.Match(err) {
		Problem(w, cancelled.Status, cancelled.Title, err.Error())
		return true
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
	return false
}
