// Package validator accumulates human-readable validation messages in the
// order the checks run, so every violation is reported together.
package validator

import (
	"regexp"
	"strings"
)

// ISBNRX matches a 10 or 13 digit ISBN.
var ISBNRX = regexp.MustCompile(`^(?:\d{10}|\d{13})$`)

// Validator holds the ordered list of failed checks.
// A Validator with no errors is considered valid.
type Validator struct {
	Errors []string
}

// New creates and returns a fresh, empty Validator.
func New() *Validator {
	return &Validator{Errors: []string{}}
}

// Valid returns true if no check has failed.
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError records message unless the same message is already present.
func (v *Validator) AddError(message string) {
	for _, existing := range v.Errors {
		if existing == message {
			return
		}
	}
	v.Errors = append(v.Errors, message)
}

// Check adds message only when ok is false:
//
//	v.Check(NotBlank(title), "Title is required")
func (v *Validator) Check(ok bool, message string) {
	if !ok {
		v.AddError(message)
	}
}

// Err returns a *ValidationError carrying the collected messages, or nil when valid.
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	out := make([]string, len(v.Errors))
	copy(out, v.Errors)
	return &ValidationError{Errors: out}
}

// ValidationError reports every failed check of one validation pass.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// NotBlank reports whether s has content once surrounding whitespace is removed.
func NotBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}

// Between reports whether lo <= n <= hi.
func Between(n, lo, hi int) bool {
	return n >= lo && n <= hi
}

// Matches returns true if value matches the provided compiled regexp.
func Matches(value string, rx *regexp.Regexp) bool {
	return rx.MatchString(value)
}
