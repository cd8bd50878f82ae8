// Package shared contains common error types and utilities.
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors used across the fetch pipeline and its adapters.
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrTransport indicates a network level failure reported by the transport
	ErrTransport = errors.New("transport failure")

	// ErrEmptyResponse indicates that the remote closed the connection without a response
	ErrEmptyResponse = errors.New("empty response from server")

	// ErrDecode indicates that a body could not be converted to text in the requested charset
	ErrDecode = errors.New("decode failed")

	// ErrParse indicates that a body is not structurally valid JSON or XML
	ErrParse = errors.New("parse failed")

	// ErrDependencyFailure indicates that an external dependency failed
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindNotFound represents resource not found errors
	KindNotFound
	// KindValidation represents input validation errors
	KindValidation
	// KindTimeout represents timeout errors
	KindTimeout
	// KindTransport represents network failures
	KindTransport
	// KindEmptyResponse represents connections closed before a response arrived
	KindEmptyResponse
	// KindDecode represents charset decoding failures
	KindDecode
	// KindParse represents JSON/XML parse failures
	KindParse
	// KindDependencyFailure represents external dependency failures
	KindDependencyFailure
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindTimeout:
		return "Timeout"
	case KindTransport:
		return "Transport"
	case KindEmptyResponse:
		return "EmptyResponse"
	case KindDecode:
		return "Decode"
	case KindParse:
		return "Parse"
	case KindDependencyFailure:
		return "DependencyFailure"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

var kindToSentinel = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindValidation:        ErrValidation,
	KindTimeout:           ErrTimeout,
	KindTransport:         ErrTransport,
	KindEmptyResponse:     ErrEmptyResponse,
	KindDecode:            ErrDecode,
	KindParse:             ErrParse,
	KindDependencyFailure: ErrDependencyFailure,
}

// kindPriorities defines the deterministic order for error classification.
// An empty response is reported before the generic transport kind because
// it is always marked as both.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindValidation, ErrValidation},
	{KindNotFound, ErrNotFound},
	{KindEmptyResponse, ErrEmptyResponse},
	{KindDecode, ErrDecode},
	{KindParse, ErrParse},
	{KindTransport, ErrTransport},
	{KindDependencyFailure, ErrDependencyFailure},
}

// KindOf returns the Kind of the given error by checking against known sentinel errors.
// It traverses the error chain using a deterministic priority order:
// cancellation, timeout, validation, not found, empty response, decode,
// parse, transport, dependency failure.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindValidation:
//	    return http.StatusBadRequest
//	case shared.KindDecode, shared.KindParse:
//	    return http.StatusUnprocessableEntity
//	default:
//	    return http.StatusBadGateway
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, priority := range kindPriorities {
		switch priority.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, priority.err) {
				return priority.kind
			}
		}
	}

	return KindUnknown
}

// HasKind reports whether the given error has the specified kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SentinelOf returns the sentinel error for the given Kind.
// For KindUnknown and KindCanceled, it returns nil.
func SentinelOf(kind Kind) error {
	return kindToSentinel[kind]
}

// MarkKind wraps an error with the sentinel for the given kind, preserving the
// original error through wrapping. Marking an error with a kind it already
// has returns it unchanged. If err is nil, the sentinel itself is returned.
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap wraps an error with additional context.
// It returns a new error that formats as "context: err".
// If err is nil, Wrap returns nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
// It checks for context.DeadlineExceeded, net.Error timeouts, and ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNotFound reports whether the error indicates a resource not found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether the error indicates input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// Cause returns the innermost error of a single-wrap chain.
// If err is nil, Cause returns nil.
func Cause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}
