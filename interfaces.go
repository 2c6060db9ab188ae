package jsbridge

import (
	"github.com/cryguy/jsbridge/internal/core"
)

// ErrNoTransport is returned by the host dispatch path when no Transport
// is installed. Script-side it surfaces as a catchable ReferenceError.
var ErrNoTransport = core.ErrNoTransport

// ErrNotReady reports an engine operation attempted without a live
// runtime/context pair. Execute-class bridge operations never return it;
// they report a NotInitialized outcome instead.
var ErrNotReady = core.ErrNotReady

// HostCallRequest is the decoded form of one script-initiated HTTP
// request. HasBody distinguishes an absent body from an empty one.
type HostCallRequest struct {
	URL       string
	Method    string
	Headers   map[string]string
	Body      string
	HasBody   bool
	TimeoutMs int
}

// HostCallResponse is what a Transport hands back. It is serialized to
// JSON as-is and becomes the response object the polyfills expose, so
// the field tags are part of the script-visible contract.
type HostCallResponse struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	OK         bool              `json:"ok"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Transport performs HTTP requests on behalf of scripts. Implementations
// must normalize unrecognized methods to GET and enforce their own
// response size limits. A Transport must be safe for use from a single
// goroutine at a time; the bridge serializes calls.
type Transport interface {
	// Perform executes the request and returns the response, or an error
	// when no response could be produced at all (network failure,
	// timeout, oversized body). HTTP error statuses are responses, not
	// errors.
	Perform(req HostCallRequest) (HostCallResponse, error)
	// Reachable reports whether the given URL currently answers with a
	// success status.
	Reachable(url string) bool
}

// Fetcher downloads remote script text. DownloadText returns nil on any
// failure (network error, non-success status, oversized body); failures
// are logged, not returned.
type Fetcher interface {
	DownloadText(url string) *string
}

// Scheduler decides when script timers fire. Schedule reports whether
// the callback should run immediately; implementations that return false
// take ownership of firing it later via Next. See internal/sched for the
// stock implementations.
type Scheduler = core.Scheduler
