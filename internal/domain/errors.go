package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the failure class of a collection error.
type Kind int

const (
	KindUnknown Kind = iota
	KindUpstreamUnavailable
	KindInvalidConfiguration
	KindSubjectNotFound
	KindPartialTree
)

func (k Kind) String() string {
	switch k {
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindSubjectNotFound:
		return "subject_not_found"
	case KindPartialTree:
		return "partial_tree_failure"
	}
	return "unknown"
}

var (
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidSort          = fmt.Errorf("%w: invalid sort strategy", ErrInvalidConfiguration)
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrPartialTree          = errors.New("partial tree failure")
)

// Error is the typed error returned by a failed run.
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Subject, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind, so wrapping a bare cause still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUpstreamUnavailable:
		return e.Kind == KindUpstreamUnavailable
	case ErrInvalidConfiguration:
		return e.Kind == KindInvalidConfiguration
	case ErrSubjectNotFound:
		return e.Kind == KindSubjectNotFound
	case ErrPartialTree:
		return e.Kind == KindPartialTree
	}
	return false
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// KindOf classifies err; unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	case errors.Is(err, ErrInvalidConfiguration):
		return KindInvalidConfiguration
	case errors.Is(err, ErrSubjectNotFound):
		return KindSubjectNotFound
	case errors.Is(err, ErrPartialTree):
		return KindPartialTree
	}
	return KindUnknown
}

// IsTransient reports whether a retry could change the outcome.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch KindOf(err) {
	case KindInvalidConfiguration, KindSubjectNotFound:
		return false
	}
	return true
}
