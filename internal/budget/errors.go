package budget

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBudgetNotFound is returned by repositories when a budget id is unknown.
	ErrBudgetNotFound = errors.New("budget: not found")
	// ErrDistributionNotFound is returned when a monthly distribution id is unknown.
	ErrDistributionNotFound = errors.New("budget: monthly distribution not found")
	// ErrDocumentNotDraft is returned when a submitted document is missing or already submitted.
	ErrDocumentNotDraft = errors.New("budget: document is not a draft")
)

// ConfigurationError reports budget master data that cannot be evaluated.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return "budget configuration: " + e.Reason + ": " + e.Err.Error()
	}
	return "budget configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// BudgetExceededError aborts a document submission blocked by a Stop action.
type BudgetExceededError struct {
	Decision Decision
}

func (e *BudgetExceededError) Error() string {
	msgs := make([]string, 0, len(e.Decision.Breakdown))
	for _, c := range e.Decision.Breakdown {
		if c.Outcome == OutcomeStop {
			msgs = append(msgs, c.Message)
		}
	}
	if len(msgs) == 0 {
		return "budget exceeded"
	}
	return "budget exceeded: " + strings.Join(msgs, "; ")
}

// IsBudgetExceeded reports whether err carries a blocking decision.
func IsBudgetExceeded(err error) bool {
	var target *BudgetExceededError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
