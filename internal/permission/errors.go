package permission

import (
	"errors"
	"fmt"
)

// ErrUnsupported rejects the ready signal when the platform has no
// orientation event facility and the caller asked for a hard failure.
var ErrUnsupported = errors.New("permission: device orientation not supported")

// ErrTornDown settles a still-pending ready signal when Teardown is
// called mid-handshake.
var ErrTornDown = errors.New("permission: coordinator torn down")

// ErrorKind classifies a failed permission request. Requesters return
// structured kinds instead of free-text messages so the retry logic
// never has to parse error strings.
type ErrorKind int

const (
	// KindOther is any failure that is not retryable.
	KindOther ErrorKind = iota
	// KindNotAllowed means the platform refused because the request was
	// not triggered by a direct user gesture. Retryable once.
	KindNotAllowed
)

// RequestError is the error type permission requesters must return.
type RequestError struct {
	Kind   ErrorKind
	Reason string
}

func (e *RequestError) Error() string {
	if e.Kind == KindNotAllowed {
		return fmt.Sprintf("permission request not allowed: %s", e.Reason)
	}
	return fmt.Sprintf("permission request failed: %s", e.Reason)
}

// isNotAllowed reports whether err carries the retryable kind.
func isNotAllowed(err error) bool {
	var rerr *RequestError
	return errors.As(err, &rerr) && rerr.Kind == KindNotAllowed
}
