package wx

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by every component.
var (
	// ErrGrammarMismatch is returned when text does not fit a product grammar.
	ErrGrammarMismatch = errors.New("grammar mismatch")
	// ErrUnsupportedProduct is returned for a product kind with no decoder.
	ErrUnsupportedProduct = errors.New("unsupported product")
	// ErrSourceUnavailable is returned when every source and the synthetic
	// fallback failed.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrStationNotFound is returned when no station can be resolved.
	ErrStationNotFound = errors.New("station not found")
	// ErrValidation is returned for out-of-range or inconsistent values.
	ErrValidation = errors.New("validation error")
)

// GroupIssue records a token that could not be decoded into its group.
type GroupIssue struct {
	Group string `json:"group"`
	Token string `json:"token"`
	Err   error  `json:"-"`
}

func (i GroupIssue) Error() string {
	if i.Group == "" {
		return fmt.Sprintf("%q: %v", i.Token, i.Err)
	}
	return fmt.Sprintf("%s group %q: %v", i.Group, i.Token, i.Err)
}

func (i GroupIssue) Unwrap() error { return i.Err }

// MarshalText renders the issue for JSON output.
func (i GroupIssue) MarshalText() ([]byte, error) {
	return []byte(i.Error()), nil
}

// PartialDecodeError reports a record that decoded with ungrammatical
// remainder. The record itself is still usable.
type PartialDecodeError struct {
	Kind    ProductKind
	Station string
	Issues  []GroupIssue
}

func (e *PartialDecodeError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.Error()
	}
	return fmt.Sprintf("partial decode of %s %s: %s", e.Kind, e.Station, strings.Join(parts, "; "))
}

// Unwrap exposes the individual issues to errors.Is.
func (e *PartialDecodeError) Unwrap() []error {
	errs := make([]error, len(e.Issues))
	for i, issue := range e.Issues {
		errs[i] = issue
	}
	return errs
}

// AsPartial returns a PartialDecodeError when the record carries issues.
func AsPartial(r Record) error {
	issues := r.GroupIssues()
	if len(issues) == 0 {
		return nil
	}
	return &PartialDecodeError{Kind: r.Product(), Station: r.StationID(), Issues: issues}
}

// SourceError is a failure reported by a named upstream source.
type SourceError struct {
	Source  string
	Station string
	Kind    ProductKind
	Err     error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s %s: %v", e.Source, e.Kind, e.Station, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
