package core

import (
	"errors"
	"time"
)

// ErrNoTransport reports that a script attempted a network call but no
// transport delegate was installed on the bridge. The polyfill layer maps
// it to a script-visible ReferenceError.
var ErrNoTransport = errors.New("no transport installed")

// ErrNotReady reports an engine operation attempted without a live
// runtime/context pair.
var ErrNotReady = errors.New("engine is not initialized")

// HostCall is the single crossing point for script-to-host capability
// invocation. It receives the target URL and a JSON-encoded options blob,
// and returns a JSON-encoded response object. Any returned error becomes a
// script-visible exception.
type HostCall func(url, optionsJSON string) (string, error)

// Scheduler decides when script timer callbacks run. The default
// implementation runs every callback inline at registration time; a
// deferring implementation queues callbacks and hands them back to the
// engine's drain loop through Next.
type Scheduler interface {
	// Schedule registers a timer callback id with its requested delay.
	// Returning true directs the script side to run the callback inline
	// immediately; returning false leaves it queued for the drain loop.
	Schedule(id int, delay time.Duration) bool

	// Cancel discards a queued callback. Unknown ids are ignored.
	Cancel(id int)

	// Next pops the id of the next queued callback, if any.
	Next() (int, bool)

	// HasPending reports whether any queued callback remains.
	HasPending() bool

	// Reset discards all queued callbacks. Called on context reset so
	// stale handles never fire into a fresh context.
	Reset()
}
