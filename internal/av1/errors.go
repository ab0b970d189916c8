package av1

import (
	"errors"
	"fmt"
)

// ErrorKind classifies packetization failures. The enum is closed on
// purpose: hosts translate kinds to their own error convention instead of
// matching message strings.
type ErrorKind string

const (
	// KindConfig means the payload budget cannot make progress at all.
	KindConfig ErrorKind = "CONFIG_ERROR"
	// KindEncodingOverflow means a length exceeded the 56-bit LEB128 ceiling.
	KindEncodingOverflow ErrorKind = "ENCODING_OVERFLOW"
	// KindMalformedDatagram means a datagram was too short or its element
	// structure did not parse.
	KindMalformedDatagram ErrorKind = "MALFORMED_DATAGRAM"
	// KindProtocolViolation means the aggregation header carried an illegal
	// flag combination (N together with Z).
	KindProtocolViolation ErrorKind = "PROTOCOL_VIOLATION"
)

// Error is the error type returned by the packetizer and depacketizer.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed, or ""
// when no *Error is in the chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
