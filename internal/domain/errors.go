package domain

import (
	"context"
	"errors"
)

// Pipeline failure kinds.
var (
	ErrClassificationFailure = errors.New("classification failure")
	ErrResponderFailure      = errors.New("responder failure")
	ErrAggregationFailure    = errors.New("aggregation failure")
	ErrFallbackFailure       = errors.New("fallback failure")
	ErrTransportFailure      = errors.New("transport failure")
	ErrSessionBusy           = errors.New("request already in progress")
	ErrEmptyOutput           = errors.New("empty output")
	ErrNoResponder           = errors.New("no responder configured")
)

// ErrorKind is the serialisable classification of a failure.
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindClassification ErrorKind = "classification_failure"
	ErrorKindResponder      ErrorKind = "responder_failure"
	ErrorKindAggregation    ErrorKind = "aggregation_failure"
	ErrorKindFallback       ErrorKind = "fallback_failure"
	ErrorKindTransport      ErrorKind = "transport_failure"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindEmptyOutput    ErrorKind = "empty_output"
	ErrorKindNoResponder    ErrorKind = "no_responder"
	ErrorKindCancelled      ErrorKind = "cancelled"
)

// KindOf maps an error onto its ErrorKind. The most specific kind wins.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, ErrEmptyOutput):
		return ErrorKindEmptyOutput
	case errors.Is(err, ErrNoResponder):
		return ErrorKindNoResponder
	case errors.Is(err, ErrClassificationFailure):
		return ErrorKindClassification
	case errors.Is(err, ErrAggregationFailure):
		return ErrorKindAggregation
	case errors.Is(err, ErrFallbackFailure):
		return ErrorKindFallback
	case errors.Is(err, ErrTransportFailure):
		return ErrorKindTransport
	default:
		return ErrorKindResponder
	}
}
