// Package errors provides a structured error type with wrapping, codes and record context
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
	"strconv"
)

// ErrorCode classifies failures of an ingest run
// Values are stable; they are logged and mapped to exit statuses
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeMalformedTimestamp is for a timestamp field that does not match the pinned layout
	ErrorCodeMalformedTimestamp

	// ErrorCodeMalformedColor is for a color field that is not #RRGGBB hex
	ErrorCodeMalformedColor

	// ErrorCodeMalformedCoordinates is for a coordinate list that is not 2 or 4 integers
	ErrorCodeMalformedCoordinates

	// ErrorCodeHeaderMissing is for input without the expected header row
	ErrorCodeHeaderMissing

	// ErrorCodeInput is for framing/IO failures while reading the input stream
	ErrorCodeInput

	// ErrorCodeInvalidArgument is for bad parameters or an input that does not match the store
	ErrorCodeInvalidArgument

	// ErrorCodeStoreUnavailable is for a store that cannot be reached or refuses connections
	ErrorCodeStoreUnavailable

	// ErrorCodeConstraintViolation is for duplicate hash, duplicate pixel id or unknown user FK
	ErrorCodeConstraintViolation

	// ErrorCodeDB is for general database errors
	ErrorCodeDB
)

var codeNames = map[ErrorCode]string{
	ErrorCodeUnknown:              "Unknown",
	ErrorCodeMalformedTimestamp:   "MalformedTimestamp",
	ErrorCodeMalformedColor:       "MalformedColor",
	ErrorCodeMalformedCoordinates: "MalformedCoordinates",
	ErrorCodeHeaderMissing:        "HeaderMissing",
	ErrorCodeInput:                "Input",
	ErrorCodeInvalidArgument:      "InvalidArgument",
	ErrorCodeStoreUnavailable:     "StoreUnavailable",
	ErrorCodeConstraintViolation:  "ConstraintViolation",
	ErrorCodeDB:                   "DB",
}

// String returns the taxonomy name of the code
func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "ErrorCode(" + strconv.Itoa(int(c)) + ")"
}

// ExitCode maps an error to a process exit status
// 0 for nil, 2 for input and decoding problems, 3 for store problems, 1 otherwise
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch CodeOf(err) {
	case ErrorCodeMalformedTimestamp, ErrorCodeMalformedColor, ErrorCodeMalformedCoordinates,
		ErrorCodeHeaderMissing, ErrorCodeInput, ErrorCodeInvalidArgument:
		return 2
	case ErrorCodeStoreUnavailable, ErrorCodeConstraintViolation, ErrorCodeDB:
		return 3
	default:
		return 1
	}
}

// Error is the structured error type
// msg is human facing; code is machine facing
// field names the offending CSV field, op the operation, record/raw the offending input record
type Error struct {
	orig   error
	msg    string
	code   ErrorCode
	field  string
	op     string
	record int64
	raw    string
	hasRec bool
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := e.msg
	if e.field != "" {
		s += " [" + e.field + "]"
	}
	if e.hasRec {
		s += fmt.Sprintf(" (record %d: %q)", e.record, e.raw)
	}
	if e.orig != nil {
		return s + ": " + e.orig.Error()
	}
	return s
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// Record returns the zero-based ordinal and raw content of the offending record
func (e *Error) Record() (ordinal int64, raw string, ok bool) {
	return e.record, e.raw, e.hasRec
}

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// RecordOf returns the record context attached anywhere in the chain
func RecordOf(err error) (ordinal int64, raw string, ok bool) {
	for err != nil {
		if e, isOurs := err.(*Error); isOurs && e.hasRec {
			return e.record, e.raw, true
		}
		err = stderrs.Unwrap(err)
	}
	return 0, "", false
}

// Mutators (copy-on-write)

// WithField attaches a field to an *Error. If err isn't *Error, returns err unchanged
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// WithOp attaches an operation label to an *Error. If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// WithRecord attaches the ordinal and raw content of the offending input record.
// Foreign errors are wrapped with the Unknown code so the context is never lost
func WithRecord(err error, ordinal int64, raw string) error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		c := *e
		c.record, c.raw, c.hasRec = ordinal, raw, true
		return &c
	}
	return &Error{code: ErrorCodeUnknown, msg: err.Error(), orig: err, record: ordinal, raw: raw, hasRec: true}
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// Sugar

// InvalidArgf returns an invalid argument error
func InvalidArgf(format string, a ...any) error { return Newf(ErrorCodeInvalidArgument, format, a...) }

// Constraintf returns a constraint violation error
func Constraintf(format string, a ...any) error {
	return Newf(ErrorCodeConstraintViolation, format, a...)
}

// Unavailablef returns a store unavailable error
func Unavailablef(format string, a ...any) error {
	return Newf(ErrorCodeStoreUnavailable, format, a...)
}

// HeaderMissingf returns a header missing error
func HeaderMissingf(format string, a ...any) error { return Newf(ErrorCodeHeaderMissing, format, a...) }

// DBf returns a general database error
func DBf(format string, a ...any) error { return Newf(ErrorCodeDB, format, a...) }

// Internalf returns a generic internal error
func Internalf(format string, a ...any) error { return Newf(ErrorCodeUnknown, format, a...) }
