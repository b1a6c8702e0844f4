package fdsu

import "github.com/pkg/errors"

// Reason classifies a TransportError.
type Reason int

const (
	Timeout Reason = iota
	InsaneSequence
	DanglingReference
	InterruptedIO
	PeerClosed
)

func (r Reason) String() string {
	switch r {
	case Timeout:
		return "Timeout"
	case InsaneSequence:
		return "InsaneSequence"
	case DanglingReference:
		return "DanglingReference"
	case InterruptedIO:
		return "InterruptedIO"
	case PeerClosed:
		return "PeerClosed"
	default:
		return "Unknown"
	}
}

// TransportError wraps an FDSU failure with its taxonomy reason.
type TransportError struct {
	Reason Reason
	Err    error
}

func (e *TransportError) Error() string { return "fdsu: " + e.Reason.String() + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

func fail(reason Reason, format string, args ...interface{}) error {
	return &TransportError{Reason: reason, Err: errors.Errorf(format, args...)}
}

// ReasonOf extracts the taxonomy reason from err, or ok=false if err is not
// a TransportError. Callers use it to pick the stalled-stream fallback path.
func ReasonOf(err error) (Reason, bool) {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.Reason, true
	}
	return 0, false
}
