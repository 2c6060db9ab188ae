package polyfill

import "github.com/buke/quickjs-go"

// consoleJS builds the console object. It performs no native crossing:
// each method formats its arguments (objects through JSON.stringify,
// everything else through String) joined by single spaces, and returns the
// formatted line so console calls are usable as plain expressions.
const consoleJS = `
(function() {
	function format(args) {
		var parts = [];
		for (var i = 0; i < args.length; i++) {
			var arg = args[i];
			if (typeof arg === 'object' && arg !== null) {
				try { parts.push(JSON.stringify(arg)); }
				catch (e) { parts.push(String(arg)); }
			} else {
				parts.push(String(arg));
			}
		}
		return parts.join(' ');
	}
	globalThis.console = {
		log: function() {
			return format(Array.prototype.slice.call(arguments));
		},
		error: function() {
			return this.log.apply(this, ['ERROR:'].concat(Array.prototype.slice.call(arguments)));
		},
		warn: function() {
			return this.log.apply(this, ['WARN:'].concat(Array.prototype.slice.call(arguments)));
		},
		info: function() {
			return this.log.apply(this, ['INFO:'].concat(Array.prototype.slice.call(arguments)));
		}
	};
})();
`

// SetupConsole evaluates the console polyfill.
func SetupConsole(ctx *quickjs.Context) error {
	return evalScript(ctx, consoleJS)
}
