package relay

import (
	"errors"
	"fmt"
)

// ErrQueueFull is returned by Dispatcher.Enqueue when no slot is free.
var ErrQueueFull = errors.New("relay queue full")

// ErrStopped is returned by Dispatcher.Enqueue after Shutdown.
var ErrStopped = errors.New("relay dispatcher stopped")

// ConfigurationError means the workspace has neither a matching routing
// entry nor a default one. It is shown to the user and creates no session.
type ConfigurationError struct {
	WorkspaceID string
	CommandName string
}

func (e *ConfigurationError) Error() string {
	if e.CommandName != "" {
		return fmt.Sprintf("no route for command %q and no default route in workspace %s", e.CommandName, e.WorkspaceID)
	}
	return "no default route in workspace " + e.WorkspaceID
}

// UpstreamError is a failed call to the completion backend.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("completion backend status %d: %v", e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("completion backend: %v", e.Err)
	default:
		return fmt.Sprintf("completion backend status %d: %s", e.Status, e.Body)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// FormatParseWarning describes a stream line that looked like a text
// fragment but did not decode. It is logged and the line skipped.
type FormatParseWarning struct {
	Line string
	Err  error
}

func (w *FormatParseWarning) Error() string {
	return fmt.Sprintf("malformed stream line %q: %v", w.Line, w.Err)
}

func (w *FormatParseWarning) Unwrap() error {
	return w.Err
}
