package dispatch

import "errors"

// ErrTimeout is returned by Handle.Block when no matching packet arrives
// before the deadline.
var ErrTimeout = errors.New("dispatch: wait timed out")

// ErrClosed is returned to every outstanding waiter when the engine is
// reset, typically because the underlying connection dropped.
var ErrClosed = errors.New("dispatch: engine closed")
