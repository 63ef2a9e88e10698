package session

import "fmt"

// Kind enumerates the terminal error taxonomy from the specification's
// error-handling design. Transient conditions (TransientLoss,
// IntegrityFail) never surface as a Kind — they are retried or
// dropped inside the reliable-transport engines and never reach the
// session caller.
type Kind int

const (
	// KindRemoteRefusal: the peer sent an ERROR frame.
	KindRemoteRefusal Kind = iota + 1
	// KindNoSuchFile: the sender could not open the requested local file.
	KindNoSuchFile
	// KindLocalIOFail: a read or write error occurred mid-transfer.
	KindLocalIOFail
	// KindIdleTimeout: no inbound frame arrived within the idle window.
	KindIdleTimeout
	// KindHandshakeFail: the peer never answered the initial REQUEST.
	KindHandshakeFail
	// KindMalformedFrame: too many undecodable datagrams were received.
	KindMalformedFrame
)

func (k Kind) String() string {
	switch k {
	case KindRemoteRefusal:
		return "RemoteRefusal"
	case KindNoSuchFile:
		return "NoSuchFile"
	case KindLocalIOFail:
		return "LocalIOFail"
	case KindIdleTimeout:
		return "IdleTimeout"
	case KindHandshakeFail:
		return "HandshakeFail"
	case KindMalformedFrame:
		return "MalformedFrame"
	default:
		return "Unknown"
	}
}

// Error is the structured terminal outcome a session reports to its
// caller, letting callers errors.As into the taxonomy instead of
// matching strings.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}
