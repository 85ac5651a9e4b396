package notify

import "fmt"

// ErrNoPlatformFactory is returned when a sink config names a platform with
// no registered factory.
type ErrNoPlatformFactory struct {
	Sink     string
	Platform string
}

func (e *ErrNoPlatformFactory) Error() string {
	return fmt.Sprintf("notify: no factory for platform %q (sink %s)", e.Platform, e.Sink)
}

// ErrSendFailed is returned when an event could not be delivered to the
// platform.
type ErrSendFailed struct {
	Sink     string
	Platform string
	Cause    error
}

func (e *ErrSendFailed) Error() string {
	return fmt.Sprintf("notify: send failed on %s (%s): %v", e.Sink, e.Platform, e.Cause)
}

func (e *ErrSendFailed) Unwrap() error { return e.Cause }
