// Package fault classifies the failures the voice loop can hit.
//
// Every error that reaches the orchestrator is mapped onto one Kind so the
// caller can pick a recovery path (retry, switch strategy, give up) and show
// the user a short notice.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
)

// Kind is a coarse failure category.
type Kind int

const (
	// Unknown is any error that does not fit a more specific kind.
	Unknown Kind = iota
	// PermissionDenied means the user or OS refused device access.
	PermissionDenied
	// DeviceUnavailable means the device is missing or busy.
	DeviceUnavailable
	// NetworkFailure covers transport errors and non-2xx backend replies.
	NetworkFailure
	// ProtocolParseError is a malformed frame or payload.
	ProtocolParseError
	// RecognizerFailure is a continuous recognizer session that broke.
	RecognizerFailure
	// Timeout is a bounded operation that ran out of time.
	Timeout
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case DeviceUnavailable:
		return "device_unavailable"
	case NetworkFailure:
		return "network_failure"
	case ProtocolParseError:
		return "protocol_parse_error"
	case RecognizerFailure:
		return "recognizer_failure"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks.
var (
	ErrPermissionDenied  = &Error{Kind: PermissionDenied}
	ErrDeviceUnavailable = &Error{Kind: DeviceUnavailable}
	ErrNetwork           = &Error{Kind: NetworkFailure}
	ErrProtocol          = &Error{Kind: ProtocolParseError}
	ErrRecognizer        = &Error{Kind: RecognizerFailure}
	ErrTimeout           = &Error{Kind: Timeout}
)

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with a kind. A nil err still yields a usable error.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout) works
// regardless of Op or the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, exec.ErrNotFound) {
		return DeviceUnavailable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return Timeout
		}
		return NetworkFailure
	}
	return Unknown
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Notice returns a short message suitable for showing to the user.
func Notice(err error) string {
	switch KindOf(err) {
	case PermissionDenied:
		return "Microphone access was denied."
	case DeviceUnavailable:
		return "No microphone is available."
	case NetworkFailure:
		return "Can't reach the assistant right now."
	case ProtocolParseError:
		return "Got a garbled reply."
	case RecognizerFailure:
		return "Speech recognition stopped, retrying."
	case Timeout:
		return "That took too long."
	default:
		return "Something went wrong."
	}
}
