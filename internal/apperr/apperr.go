// Package apperr defines the error taxonomy of the indicator batch.
//
// Every per-unit failure is classified by Kind so the coordinator can decide
// between skipping, retrying, falling back and failing a unit without
// string matching on messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindDataUnavailable     Kind = "DATA_UNAVAILABLE"
	KindInsufficientHistory Kind = "INSUFFICIENT_HISTORY"
	KindMalformedRow        Kind = "MALFORMED_ROW"
	KindCacheCorrupt        Kind = "CACHE_CORRUPT"
	KindMergeContinuity     Kind = "MERGE_CONTINUITY_VIOLATION"
	KindIO                  Kind = "IO"
	KindConfig              Kind = "CONFIG"
	KindUnknown             Kind = "UNKNOWN"
)

// Error is an application error carrying a Kind and optional context.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to see the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.DataUnavailable)
// works against the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// With adds a context key/value and returns the same error.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons.
var (
	DataUnavailable     = &Error{Kind: KindDataUnavailable}
	InsufficientHistory = &Error{Kind: KindInsufficientHistory}
	MalformedRow        = &Error{Kind: KindMalformedRow}
	CacheCorrupt        = &Error{Kind: KindCacheCorrupt}
	MergeContinuity     = &Error{Kind: KindMergeContinuity}
	IO                  = &Error{Kind: KindIO}
	Config              = &Error{Kind: KindConfig}
)

func NewDataUnavailable(message string, cause error) *Error {
	return New(KindDataUnavailable, message, cause)
}

func NewInsufficientHistory(message string) *Error {
	return New(KindInsufficientHistory, message, nil)
}

func NewMalformedRow(message string, cause error) *Error {
	return New(KindMalformedRow, message, cause)
}

func NewCacheCorrupt(message string, cause error) *Error {
	return New(KindCacheCorrupt, message, cause)
}

func NewMergeContinuity(message string) *Error {
	return New(KindMergeContinuity, message, nil)
}

func NewIO(message string, cause error) *Error {
	return New(KindIO, message, cause)
}

func NewConfig(message string, cause error) *Error {
	return New(KindConfig, message, cause)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsSkip reports whether err means the unit should be skipped rather than failed.
func IsSkip(err error) bool {
	switch KindOf(err) {
	case KindDataUnavailable, KindInsufficientHistory:
		return true
	}
	return false
}
