package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownSource    = errors.New("unknown source")
	ErrInvalidSchema    = errors.New("invalid schema")
	ErrParse            = errors.New("parse error")
	ErrStructural       = errors.New("structural error")
	ErrSemantic         = errors.New("semantic error")
	ErrCorrectionFailed = errors.New("correction failed")
	ErrExecutionFailed  = errors.New("execution failed")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Kind names an error category of the federation pipeline.
type Kind string

const (
	KindParse            Kind = "parse_error"
	KindStructural       Kind = "structural_error"
	KindSemantic         Kind = "semantic_error"
	KindCorrectionFailed Kind = "correction_failure"
	KindExecutionFailed  Kind = "execution_failure"
	KindRetriesExhausted Kind = "retries_exhausted"
)

var kindSentinels = map[Kind]error{
	KindParse:            ErrParse,
	KindStructural:       ErrStructural,
	KindSemantic:         ErrSemantic,
	KindCorrectionFailed: ErrCorrectionFailed,
	KindExecutionFailed:  ErrExecutionFailed,
	KindRetriesExhausted: ErrRetriesExhausted,
}

// FederationError carries the failing scope (a source name or GLOBAL_SCHEMA)
// alongside the error category. It matches the category sentinel with errors.Is.
type FederationError struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *FederationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Source, e.Err)
}

func (e *FederationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *FederationError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// New builds a FederationError of the given kind.
func New(kind Kind, source string, err error) *FederationError {
	if err == nil {
		err = kindSentinels[kind]
	}
	return &FederationError{Kind: kind, Source: source, Err: err}
}

// Newf builds a FederationError with a formatted message.
func Newf(kind Kind, source, format string, args ...any) *FederationError {
	return &FederationError{Kind: kind, Source: source, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first FederationError in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *FederationError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}
