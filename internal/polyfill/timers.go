package polyfill

import (
	"time"

	"github.com/buke/quickjs-go"

	"github.com/cryguy/jsbridge/internal/core"
)

// timersJS defines setTimeout/setInterval/clearTimeout/clearInterval.
// Callbacks are parked in globalThis.__timerCallbacks under an integer
// handle; the native __timerSchedule verdict decides whether the callback
// runs inline right away (the default, delay ignored) or stays parked for
// the engine's drain loop to fire.
const timersJS = `
(function() {
	globalThis.__timerCallbacks = {};
	var nextHandle = 1;
	globalThis.setTimeout = function(callback, delay) {
		if (typeof callback !== 'function') return 0;
		var id = nextHandle++;
		var args = Array.prototype.slice.call(arguments, 2);
		globalThis.__timerCallbacks[id] = { fn: callback, args: args };
		var runNow = __timerSchedule(id, Number(delay) || 0);
		if (runNow) {
			delete globalThis.__timerCallbacks[id];
			callback.apply(null, args);
		}
		return id;
	};
	globalThis.clearTimeout = function(id) {
		if (globalThis.__timerCallbacks[id]) delete globalThis.__timerCallbacks[id];
		__timerCancel(Number(id) || 0);
	};
	globalThis.setInterval = globalThis.setTimeout;
	globalThis.clearInterval = globalThis.clearTimeout;
})();
`

// SetupTimers registers the scheduling natives and evaluates the timer
// polyfill.
func SetupTimers(ctx *quickjs.Context, sched core.Scheduler) error {
	schedule := ctx.Function(func(c *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) *quickjs.Value {
		if len(args) < 2 {
			return c.ThrowTypeError("timer id and delay are required")
		}
		id := int(args[0].Int32())
		delayMs := args[1].Int64()
		if delayMs < 0 {
			delayMs = 0
		}
		return c.Bool(sched.Schedule(id, time.Duration(delayMs)*time.Millisecond))
	})
	ctx.Globals().Set("__timerSchedule", schedule)

	cancel := ctx.Function(func(c *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) *quickjs.Value {
		if len(args) >= 1 {
			sched.Cancel(int(args[0].Int32()))
		}
		return c.Undefined()
	})
	ctx.Globals().Set("__timerCancel", cancel)

	return evalScript(ctx, timersJS)
}
