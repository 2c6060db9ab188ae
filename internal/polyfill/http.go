package polyfill

import (
	"errors"
	"fmt"

	"github.com/buke/quickjs-go"

	"github.com/cryguy/jsbridge/internal/core"
)

// nativeRequestJS wraps the string-only native crossing into the single
// script-visible entry point. The native side receives the URL plus a
// JSON-encoded options blob and answers with a JSON-encoded response
// object; parsing happens here so fetch and XHR share one code path.
const nativeRequestJS = `
globalThis._nativeHttpRequest = function(url, optionsJson) {
	if (typeof url !== 'string' || typeof optionsJson !== 'string') {
		throw new TypeError('url and options must be strings');
	}
	return JSON.parse(__hostHttpCall(url, optionsJson));
};
`

// SetupHostCall registers the native network entry point. Error mapping:
// missing transport surfaces as a ReferenceError, bad argument shapes as a
// TypeError, and transport failures as an InternalError, all catchable
// from script.
func SetupHostCall(ctx *quickjs.Context, host core.HostCall) error {
	entry := ctx.Function(func(c *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) *quickjs.Value {
		if len(args) < 2 || !args[0].IsString() || !args[1].IsString() {
			return c.ThrowTypeError("url and options must be strings")
		}
		body, err := host(args[0].String(), args[1].String())
		if err != nil {
			if errors.Is(err, core.ErrNoTransport) {
				return c.ThrowReferenceError("HTTP service not available")
			}
			return c.ThrowInternalError("HTTP request failed: %s", err.Error())
		}
		return c.String(body)
	})
	ctx.Globals().Set("__hostHttpCall", entry)

	return evalScript(ctx, nativeRequestJS)
}

// fetchJS implements a fetch-style function over _nativeHttpRequest. The
// host call is synchronous, so the returned promise is already settled:
// resolved with a response-like object whose text()/json() are resolved
// promises themselves, or rejected with a TypeError carrying the
// underlying cause.
const fetchJS = `
globalThis.fetch = function(url, options) {
	return new Promise(function(resolve, reject) {
		try {
			options = options || {};
			var headers = {};
			if (options.headers) {
				for (var key in options.headers) {
					headers[key] = String(options.headers[key]);
				}
			}
			var requestOptions = {
				method: options.method || 'GET',
				headers: headers,
				body: options.body == null ? null : String(options.body),
				timeout: options.timeout || %d,
				redirect: options.redirect || 'follow',
				credentials: options.credentials || 'same-origin'
			};
			var response = _nativeHttpRequest(url, JSON.stringify(requestOptions));
			resolve({
				ok: response.status >= 200 && response.status < 300,
				status: response.status,
				statusText: response.statusText,
				url: url,
				headers: response.headers || {},
				text: function() { return Promise.resolve(response.body); },
				json: function() {
					try { return Promise.resolve(JSON.parse(response.body)); }
					catch (e) { return Promise.reject(new SyntaxError('Failed to parse JSON: ' + e.message)); }
				}
			});
		} catch (error) {
			reject(new TypeError('Network request failed: ' + error.message));
		}
	});
};
`

// SetupFetch evaluates the fetch polyfill with the configured default
// request timeout baked in.
func SetupFetch(ctx *quickjs.Context, defaultTimeoutMs int) error {
	return evalScript(ctx, fmt.Sprintf(fetchJS, defaultTimeoutMs))
}

// xhrJS implements an XMLHttpRequest-style constructor. send() drives
// readyState through OPENED, HEADERS_RECEIVED, LOADING and DONE with
// onreadystatechange fired at each transition. A lower-layer failure
// zeroes the object (status 0, statusText "Error", readyState DONE) and
// fires onerror instead of throwing.
const xhrJS = `
(function() {
	function XMLHttpRequest() {
		this.readyState = 0;
		this.status = 0;
		this.statusText = '';
		this.responseText = '';
		this.response = '';
		this.responseURL = '';
		this.timeout = 0;
		this.onreadystatechange = null;
		this.onload = null;
		this.onerror = null;
		this._method = 'GET';
		this._url = '';
		this._headers = {};
		this._responseHeaders = {};
		this._aborted = false;
	}

	XMLHttpRequest.UNSENT = 0;
	XMLHttpRequest.OPENED = 1;
	XMLHttpRequest.HEADERS_RECEIVED = 2;
	XMLHttpRequest.LOADING = 3;
	XMLHttpRequest.DONE = 4;
	XMLHttpRequest.prototype.UNSENT = 0;
	XMLHttpRequest.prototype.OPENED = 1;
	XMLHttpRequest.prototype.HEADERS_RECEIVED = 2;
	XMLHttpRequest.prototype.LOADING = 3;
	XMLHttpRequest.prototype.DONE = 4;

	XMLHttpRequest.prototype._fireReadyStateChange = function() {
		if (typeof this.onreadystatechange === 'function') {
			try { this.onreadystatechange(); } catch (e) {}
		}
	};

	XMLHttpRequest.prototype.open = function(method, url) {
		this._method = method ? String(method) : 'GET';
		this._url = String(url);
		this._aborted = false;
		this.readyState = this.OPENED;
		this._fireReadyStateChange();
	};

	XMLHttpRequest.prototype.setRequestHeader = function(name, value) {
		this._headers[String(name)] = String(value);
	};

	XMLHttpRequest.prototype.getResponseHeader = function(name) {
		if (this.readyState < this.HEADERS_RECEIVED) return null;
		var want = String(name).toLowerCase();
		for (var key in this._responseHeaders) {
			if (key.toLowerCase() === want) return this._responseHeaders[key];
		}
		return null;
	};

	XMLHttpRequest.prototype.getAllResponseHeaders = function() {
		if (this.readyState < this.HEADERS_RECEIVED) return '';
		var lines = [];
		for (var key in this._responseHeaders) {
			lines.push(key.toLowerCase() + ': ' + this._responseHeaders[key]);
		}
		return lines.join('\r\n');
	};

	XMLHttpRequest.prototype.send = function(body) {
		if (this._aborted) return;
		try {
			var options = {
				method: this._method,
				headers: this._headers,
				body: body == null ? null : String(body),
				timeout: this.timeout || %d
			};
			var response = _nativeHttpRequest(this._url, JSON.stringify(options));
			this._responseHeaders = response.headers || {};
			this.readyState = this.HEADERS_RECEIVED;
			this._fireReadyStateChange();
			this.readyState = this.LOADING;
			this._fireReadyStateChange();
			this.status = response.status;
			this.statusText = response.statusText;
			this.responseText = response.body;
			this.response = response.body;
			this.responseURL = this._url;
			this.readyState = this.DONE;
			this._fireReadyStateChange();
			if (typeof this.onload === 'function') {
				try { this.onload(); } catch (e) {}
			}
		} catch (error) {
			this.status = 0;
			this.statusText = 'Error';
			this.responseText = '';
			this.response = '';
			this._responseHeaders = {};
			this.readyState = this.DONE;
			this._fireReadyStateChange();
			if (typeof this.onerror === 'function') {
				try { this.onerror(error); } catch (e) {}
			}
		}
	};

	XMLHttpRequest.prototype.abort = function() {
		this._aborted = true;
		this.readyState = this.UNSENT;
		this.status = 0;
		this.statusText = '';
	};

	globalThis.XMLHttpRequest = XMLHttpRequest;
})();
`

// SetupXHR evaluates the XMLHttpRequest polyfill with the configured
// default request timeout baked in.
func SetupXHR(ctx *quickjs.Context, defaultTimeoutMs int) error {
	return evalScript(ctx, fmt.Sprintf(xhrJS, defaultTimeoutMs))
}
