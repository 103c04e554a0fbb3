package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single validation problem with location context.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult aggregates all issues from the definition validation
// pipeline (structural and semantic checks at load time).
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError converts the result to a ClientError if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}

// InputViolations maps a discovered input index to the full list of messages
// describing why its current value cannot be submitted. Input validation
// never stops at the first problem; callers always see every violation.
type InputViolations map[int][]string

// Add appends a message for the given input index.
func (v InputViolations) Add(index int, format string, args ...any) {
	v[index] = append(v[index], fmt.Sprintf(format, args...))
}

// Empty reports whether no input has violations.
func (v InputViolations) Empty() bool {
	return len(v) == 0
}

// Indices returns the violating input indices in ascending order.
func (v InputViolations) Indices() []int {
	out := make([]int, 0, len(v))
	for i := range v {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// ToError converts the violations to a ClientError, nil when empty.
func (v InputViolations) ToError() error {
	if v.Empty() {
		return nil
	}

	var parts []string
	for _, i := range v.Indices() {
		parts = append(parts, fmt.Sprintf("input %d: %s", i, strings.Join(v[i], "; ")))
	}

	return NewErrorf(ErrCodeValidation, "%d input(s) failed validation", len(v)).
		WithDetails(map[string]any{
			"violations": map[int][]string(v),
			"summary":    strings.Join(parts, " | "),
		})
}
