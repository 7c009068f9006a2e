package form

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInFlight is returned when a terminal submission is already running.
var ErrInFlight = errors.New("submission already in progress")

// FieldErrors maps a field name to a human-readable message.
type FieldErrors map[string]string

// Add records msg for field unless the field already has an error.
func (fe FieldErrors) Add(field, msg string) {
	if _, ok := fe[field]; !ok {
		fe[field] = msg
	}
}

func (fe FieldErrors) Merge(other FieldErrors) {
	for k, v := range other {
		fe.Add(k, v)
	}
}

// Fields returns the failing field names in stable order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, 0, len(fe))
	for k := range fe {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Result is the outcome of validating one step.
type Result struct {
	OK     bool
	Errors FieldErrors
}

// StepError targets a failure at the step the user must return to.
type StepError struct {
	Step   int
	Fields FieldErrors
	Err    error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d", e.Step)
	if len(e.Fields) > 0 {
		b.WriteString(": ")
		for i, f := range e.Fields.Fields() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %s", f, e.Fields[f])
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StepError) Unwrap() error {
	return e.Err
}
