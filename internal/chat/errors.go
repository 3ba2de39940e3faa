package chat

import "errors"

var (
	// ErrNotActive is returned by fetching operations before the gate opens.
	ErrNotActive = errors.New("chat surface not activated")
	// ErrFetchFailed wraps a failed channel listing request.
	ErrFetchFailed = errors.New("channel listing failed")
	// ErrStaleResponse reports a listing that completed after its session ended.
	ErrStaleResponse = errors.New("stale listing response")
	// ErrUnknownChannel reports a push event for a channel absent from the
	// directory snapshot. The event is buffered, not lost.
	ErrUnknownChannel = errors.New("event for unknown channel")
)
