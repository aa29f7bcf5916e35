package channel

import (
	"errors"
	"fmt"
)

// ErrAuthentication marks a request whose signature, timestamp or token did not verify.
var ErrAuthentication = errors.New("authentication failed")

// PlatformWriteError wraps a failed post or update against the remote platform.
type PlatformWriteError struct {
	Platform Type
	Op       string
	Err      error
}

func (e *PlatformWriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *PlatformWriteError) Unwrap() error {
	return e.Err
}
