package polyfill

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/buke/quickjs-go"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/sched"
)

func testConfig() core.Config {
	return core.Config{HTTPTimeoutMs: 1000}
}

// newTestContext builds a bare engine context with the polyfills
// installed against the given host call and scheduler.
func newTestContext(t *testing.T, host core.HostCall, s core.Scheduler) *quickjs.Context {
	t.Helper()
	rt := quickjs.NewRuntime()
	ctx := rt.NewContext()
	t.Cleanup(func() {
		ctx.Close()
		rt.Close()
	})
	if err := Install(ctx, host, s, testConfig()); err != nil {
		t.Fatalf("installing polyfills: %v", err)
	}
	return ctx
}

// evalText evaluates src and returns the completion value as text.
func evalText(t *testing.T, ctx *quickjs.Context, src string) string {
	t.Helper()
	v := ctx.Eval(src)
	defer v.Free()
	if v.IsException() {
		t.Fatalf("evaluating script: %v", v.Error())
	}
	return v.String()
}

// evalThrows evaluates src and reports whether it threw.
func evalThrows(t *testing.T, ctx *quickjs.Context, src string) bool {
	t.Helper()
	v := ctx.Eval(src)
	defer v.Free()
	return v.IsException()
}

// jsonHost returns a host call answering every request with a fixed
// response.
func jsonHost(t *testing.T, status int, statusText, body string, headers map[string]string) core.HostCall {
	t.Helper()
	if headers == nil {
		headers = map[string]string{}
	}
	resp := map[string]interface{}{
		"status":     status,
		"statusText": statusText,
		"ok":         status >= 200 && status < 300,
		"headers":    headers,
		"body":       body,
	}
	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("encoding canned response: %v", err)
	}
	return func(url, optionsJSON string) (string, error) {
		return string(out), nil
	}
}

func failingHost(err error) core.HostCall {
	return func(url, optionsJSON string) (string, error) {
		return "", err
	}
}

// --- console ---

func TestConsoleFormatsArguments(t *testing.T) {
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), sched.Immediate{})
	got := evalText(t, ctx, `console.log('a', 1, true, {b: 2}, [3])`)
	want := `a 1 true {"b":2} [3]`
	if got != want {
		t.Errorf("console.log() = %q, want %q", got, want)
	}
}

func TestConsoleLevelPrefixes(t *testing.T) {
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), sched.Immediate{})
	cases := []struct {
		src  string
		want string
	}{
		{`console.error('x')`, "ERROR: x"},
		{`console.warn('x')`, "WARN: x"},
		{`console.info('x')`, "INFO: x"},
	}
	for _, c := range cases {
		if got := evalText(t, ctx, c.src); got != c.want {
			t.Errorf("%s = %q, want %q", c.src, got, c.want)
		}
	}
}

func TestConsoleHandlesCyclicObjects(t *testing.T) {
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), sched.Immediate{})
	got := evalText(t, ctx, `var o = {}; o.self = o; console.log(o)`)
	if got == "" {
		t.Errorf("console.log(cyclic) = %q, want a non-empty fallback rendering", got)
	}
}

// --- timers ---

func TestSetTimeoutRunsInlineWithImmediateScheduler(t *testing.T) {
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), sched.Immediate{})
	got := evalText(t, ctx, `var v = 0; setTimeout(function(n) { v = n; }, 0, 9); v`)
	if got != "9" {
		t.Errorf("deferred assignment = %q, want %q", got, "9")
	}
}

func TestSetTimeoutRejectsNonFunction(t *testing.T) {
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), sched.Immediate{})
	if got := evalText(t, ctx, `setTimeout('nope', 0)`); got != "0" {
		t.Errorf("setTimeout(non-function) = %q, want %q", got, "0")
	}
}

func TestSetTimeoutHandlesIncrement(t *testing.T) {
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), sched.Immediate{})
	got := evalText(t, ctx, `var a = setTimeout(function() {}, 0); var b = setTimeout(function() {}, 0); String(a < b)`)
	if got != "true" {
		t.Errorf("handle ordering = %q, want %q", got, "true")
	}
}

func TestDeferredTimerParksCallback(t *testing.T) {
	q := sched.NewQueue()
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), q)

	got := evalText(t, ctx, `var fired = false;
		var id = setTimeout(function() { fired = true; }, 10);
		String(fired) + '|' + typeof globalThis.__timerCallbacks[id]`)
	if got != "false|object" {
		t.Errorf("parked state = %q, want %q", got, "false|object")
	}
	if !q.HasPending() {
		t.Errorf("HasPending() = false, want true")
	}
}

func TestClearTimeoutCancelsDeferredCallback(t *testing.T) {
	q := sched.NewQueue()
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), q)

	got := evalText(t, ctx, `var id = setTimeout(function() {}, 10);
		clearTimeout(id);
		typeof globalThis.__timerCallbacks[id]`)
	if got != "undefined" {
		t.Errorf("callback after clearTimeout = %q, want %q", got, "undefined")
	}
	if q.HasPending() {
		t.Errorf("HasPending() = true after clearTimeout, want false")
	}
}

// --- host call plumbing ---

func TestNativeRequestRejectsBadArguments(t *testing.T) {
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), sched.Immediate{})
	if !evalThrows(t, ctx, `_nativeHttpRequest(1, 2)`) {
		t.Errorf("_nativeHttpRequest(1, 2) did not throw")
	}
	if !evalThrows(t, ctx, `__hostHttpCall('https://x.test/', 42)`) {
		t.Errorf("__hostHttpCall with non-string options did not throw")
	}
}

func TestNativeRequestSurfacesMissingTransport(t *testing.T) {
	ctx := newTestContext(t, failingHost(core.ErrNoTransport), sched.Immediate{})
	got := evalText(t, ctx, `(function() {
		try { _nativeHttpRequest('https://x.test/', '{}'); return 'no throw'; }
		catch (e) { return e.message; }
	})()`)
	if !strings.Contains(got, "HTTP service not available") {
		t.Errorf("missing-transport message = %q, want it to mention the missing service", got)
	}
}

func TestNativeRequestSurfacesTransportFailure(t *testing.T) {
	ctx := newTestContext(t, failingHost(errors.New("connection refused")), sched.Immediate{})
	got := evalText(t, ctx, `(function() {
		try { _nativeHttpRequest('https://x.test/', '{}'); return 'no throw'; }
		catch (e) { return e.message; }
	})()`)
	if !strings.Contains(got, "connection refused") {
		t.Errorf("failure message = %q, want it to contain the transport error", got)
	}
}

func TestHostCallReceivesRequestOptions(t *testing.T) {
	var gotURL, gotOptions string
	host := func(url, optionsJSON string) (string, error) {
		gotURL, gotOptions = url, optionsJSON
		return `{"status":204,"statusText":"No Content","ok":true,"headers":{},"body":""}`, nil
	}
	ctx := newTestContext(t, host, sched.Immediate{})

	evalText(t, ctx, `fetch('https://svc.test/items', {
		method: 'POST',
		headers: {'X-Token': 't'},
		body: 'hi'
	}); 'done'`)
	ctx.Loop()

	if gotURL != "https://svc.test/items" {
		t.Errorf("url = %q, want %q", gotURL, "https://svc.test/items")
	}
	var opts struct {
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers"`
		Body    *string           `json:"body"`
		Timeout int               `json:"timeout"`
	}
	if err := json.Unmarshal([]byte(gotOptions), &opts); err != nil {
		t.Fatalf("decoding options %q: %v", gotOptions, err)
	}
	if opts.Method != "POST" {
		t.Errorf("method = %q, want %q", opts.Method, "POST")
	}
	if opts.Headers["X-Token"] != "t" {
		t.Errorf("headers = %v, want X-Token=t", opts.Headers)
	}
	if opts.Body == nil || *opts.Body != "hi" {
		t.Errorf("body = %v, want %q", opts.Body, "hi")
	}
	if opts.Timeout != 1000 {
		t.Errorf("timeout = %d, want the configured default 1000", opts.Timeout)
	}
}

// --- fetch ---

func TestFetchResolvesResponse(t *testing.T) {
	host := jsonHost(t, 200, "OK", "hello", map[string]string{"Content-Type": "text/plain"})
	ctx := newTestContext(t, host, sched.Immediate{})

	evalText(t, ctx, `var got = '';
		fetch('https://svc.test/x').then(function(r) {
			got = r.status + '|' + r.ok + '|' + r.statusText + '|' + r.headers['Content-Type'];
			return r.text();
		}).then(function(body) {
			got += '|' + body;
		});`)
	ctx.Loop()

	got := evalText(t, ctx, "got")
	want := "200|true|OK|text/plain|hello"
	if got != want {
		t.Errorf("fetch result = %q, want %q", got, want)
	}
}

func TestFetchParsesJSONBody(t *testing.T) {
	host := jsonHost(t, 200, "OK", `{"n": 7}`, nil)
	ctx := newTestContext(t, host, sched.Immediate{})

	evalText(t, ctx, `var got = '';
		fetch('https://svc.test/n').then(function(r) { return r.json(); })
			.then(function(v) { got = 'n=' + v.n; });`)
	ctx.Loop()

	if got := evalText(t, ctx, "got"); got != "n=7" {
		t.Errorf("json() result = %q, want %q", got, "n=7")
	}
}

func TestFetchJSONRejectsBadBody(t *testing.T) {
	host := jsonHost(t, 200, "OK", "not json", nil)
	ctx := newTestContext(t, host, sched.Immediate{})

	evalText(t, ctx, `var got = '';
		fetch('https://svc.test/n').then(function(r) { return r.json(); })
			.then(function() { got = 'parsed'; }, function(e) { got = e.message; });`)
	ctx.Loop()

	got := evalText(t, ctx, "got")
	if !strings.Contains(got, "Failed to parse JSON") {
		t.Errorf("json() rejection = %q, want a parse failure message", got)
	}
}

func TestFetchMarksErrorStatusNotOK(t *testing.T) {
	host := jsonHost(t, 503, "Service Unavailable", "", nil)
	ctx := newTestContext(t, host, sched.Immediate{})

	evalText(t, ctx, `var got = '';
		fetch('https://svc.test/down').then(function(r) { got = r.status + '|' + r.ok; });`)
	ctx.Loop()

	if got := evalText(t, ctx, "got"); got != "503|false" {
		t.Errorf("fetch result = %q, want %q", got, "503|false")
	}
}

func TestFetchRejectsOnTransportFailure(t *testing.T) {
	ctx := newTestContext(t, failingHost(errors.New("connection refused")), sched.Immediate{})

	evalText(t, ctx, `var got = '';
		fetch('https://svc.test/x').then(
			function() { got = 'resolved'; },
			function(e) { got = 'rejected: ' + e.message; });`)
	ctx.Loop()

	got := evalText(t, ctx, "got")
	if !strings.HasPrefix(got, "rejected: Network request failed") || !strings.Contains(got, "connection refused") {
		t.Errorf("fetch rejection = %q, want a TypeError carrying the cause", got)
	}
}

// --- XMLHttpRequest ---

func TestXHRWalksReadyStates(t *testing.T) {
	host := jsonHost(t, 200, "OK", "ok-body", map[string]string{"Content-Type": "text/plain"})
	ctx := newTestContext(t, host, sched.Immediate{})

	got := evalText(t, ctx, `var xhr = new XMLHttpRequest();
		var states = [];
		var loaded = false;
		xhr.onreadystatechange = function() { states.push(xhr.readyState); };
		xhr.onload = function() { loaded = true; };
		xhr.open('GET', 'https://svc.test/y');
		xhr.send();
		states.join(',') + '|' + xhr.status + '|' + xhr.responseText + '|' + loaded`)
	want := "1,2,3,4|200|ok-body|true"
	if got != want {
		t.Errorf("XHR run = %q, want %q", got, want)
	}
}

func TestXHRFailureZeroesObject(t *testing.T) {
	ctx := newTestContext(t, failingHost(errors.New("connection refused")), sched.Immediate{})

	got := evalText(t, ctx, `var xhr = new XMLHttpRequest();
		var errFired = false;
		xhr.onerror = function() { errFired = true; };
		xhr.open('GET', 'https://svc.test/y');
		xhr.send();
		xhr.status + '|' + xhr.statusText + '|' + xhr.readyState + '|' + errFired`)
	want := "0|Error|4|true"
	if got != want {
		t.Errorf("failed XHR state = %q, want %q", got, want)
	}
}

func TestXHRResponseHeaderLookup(t *testing.T) {
	host := jsonHost(t, 200, "OK", "", map[string]string{"Content-Type": "application/json", "X-Limit": "5"})
	ctx := newTestContext(t, host, sched.Immediate{})

	got := evalText(t, ctx, `var xhr = new XMLHttpRequest();
		xhr.open('GET', 'https://svc.test/h');
		var before = xhr.getResponseHeader('Content-Type');
		xhr.send();
		before + '|' + xhr.getResponseHeader('content-type')`)
	if got != "null|application/json" {
		t.Errorf("header lookup = %q, want %q", got, "null|application/json")
	}

	all := evalText(t, ctx, "xhr.getAllResponseHeaders()")
	if !strings.Contains(all, "content-type: application/json") || !strings.Contains(all, "x-limit: 5") {
		t.Errorf("getAllResponseHeaders() = %q, want lowercase header lines", all)
	}
}

func TestXHRAbortBlocksSend(t *testing.T) {
	host := jsonHost(t, 200, "OK", "should not arrive", nil)
	ctx := newTestContext(t, host, sched.Immediate{})

	got := evalText(t, ctx, `var xhr = new XMLHttpRequest();
		xhr.open('GET', 'https://svc.test/a');
		xhr.abort();
		xhr.send();
		xhr.readyState + '|' + xhr.responseText`)
	if got != "0|" {
		t.Errorf("aborted XHR = %q, want %q", got, "0|")
	}
}

func TestXHRSendsRequestHeaders(t *testing.T) {
	var gotOptions string
	host := func(url, optionsJSON string) (string, error) {
		gotOptions = optionsJSON
		return `{"status":200,"statusText":"OK","ok":true,"headers":{},"body":""}`, nil
	}
	ctx := newTestContext(t, host, sched.Immediate{})

	evalText(t, ctx, `var xhr = new XMLHttpRequest();
		xhr.open('PUT', 'https://svc.test/w');
		xhr.setRequestHeader('X-A', 1);
		xhr.send('payload'); 'done'`)

	var opts struct {
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers"`
		Body    *string           `json:"body"`
	}
	if err := json.Unmarshal([]byte(gotOptions), &opts); err != nil {
		t.Fatalf("decoding options %q: %v", gotOptions, err)
	}
	if opts.Method != "PUT" {
		t.Errorf("method = %q, want %q", opts.Method, "PUT")
	}
	if opts.Headers["X-A"] != "1" {
		t.Errorf("headers = %v, want X-A coerced to %q", opts.Headers, "1")
	}
	if opts.Body == nil || *opts.Body != "payload" {
		t.Errorf("body = %v, want %q", opts.Body, "payload")
	}
}
