package convert

import (
	"errors"
	"fmt"
)

// Kind categorizes a conversion failure.
type Kind string

const (
	KindInvalidInput             Kind = "InvalidInput"
	KindConversionTimeout        Kind = "ConversionTimeout"
	KindOutputNotFound           Kind = "OutputNotFound"
	KindInvalidOutput            Kind = "InvalidOutput"
	KindUpstreamConversionFailed Kind = "UpstreamConversionFailed"
	KindExportURLMissing         Kind = "ExportUrlMissing"
	KindStorageAccessError       Kind = "StorageAccessError"
	KindInvalidArgument          Kind = "InvalidArgument"
)

// Sentinels for errors.Is checks. They match any *Error of the same kind.
var (
	ErrInvalidInput             = &Error{Kind: KindInvalidInput}
	ErrConversionTimeout        = &Error{Kind: KindConversionTimeout}
	ErrOutputNotFound           = &Error{Kind: KindOutputNotFound}
	ErrInvalidOutput            = &Error{Kind: KindInvalidOutput}
	ErrUpstreamConversionFailed = &Error{Kind: KindUpstreamConversionFailed}
	ErrExportURLMissing         = &Error{Kind: KindExportURLMissing}
	ErrStorageAccess            = &Error{Kind: KindStorageAccessError}
	ErrInvalidArgument          = &Error{Kind: KindInvalidArgument}
)

// Error is the single typed error returned by the worker, the gateway and the
// job orchestrator.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around err.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Message returns the human-readable part of err without the kind prefix.
func Message(err error) string {
	var ce *Error
	if !errors.As(err, &ce) {
		return err.Error()
	}
	switch {
	case ce.Message != "" && ce.Err != nil:
		return fmt.Sprintf("%s: %v", ce.Message, ce.Err)
	case ce.Message != "":
		return ce.Message
	case ce.Err != nil:
		return ce.Err.Error()
	}
	return string(ce.Kind)
}

// IsClientError reports whether err was caused by what the caller sent rather
// than by a downstream failure.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInvalidArgument, KindInvalidInput:
		return true
	}
	return false
}
