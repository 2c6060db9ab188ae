// Package engine owns the embedded QuickJS runtime/context pair and the
// evaluation pipeline: run a script, drain pending jobs and deferred timers
// to a fixed point, settle promise results, and extract a textual outcome.
// Exactly one runtime and one live context exist per Engine; reset replaces
// the context while the runtime and its heap configuration survive.
package engine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/buke/quickjs-go"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/polyfill"
)

// RawKind classifies the unnormalized result of an evaluation.
type RawKind int

const (
	// RawValue is a settled, non-exceptional completion value.
	RawValue RawKind = iota
	// RawError is a thrown exception (including bytecode decode failures).
	RawError
	// RawRejection is an asynchronous value that settled to rejected, or
	// one that can never settle because no schedulable work remains.
	RawRejection
)

// RawOutcome carries the evaluation result across the engine boundary as
// text. Extraction happens here because engine value handles do not
// outlive the call that produced them.
type RawOutcome struct {
	Kind RawKind
	Text string
}

// completionGlobal parks the script completion value so the drain probe
// and stringifier can reach it from JS.
const completionGlobal = "__completion_value"

// Engine is the script engine: one QuickJS runtime, one live context, and
// the scheduler/host-call collaborators the polyfills are wired to.
type Engine struct {
	cfg   core.Config
	host  core.HostCall
	sched core.Scheduler

	rt  *quickjs.Runtime
	ctx *quickjs.Context

	runtimeID  uint64
	generation uint32
}

// New creates an Engine. No engine resources are allocated until
// Initialize; a zero scheduler or host call is not permitted (the bridge
// always supplies both).
func New(cfg core.Config, host core.HostCall, sched core.Scheduler) *Engine {
	return &Engine{cfg: cfg, host: host, sched: sched}
}

// Initialize creates the runtime with its fixed heap ceiling and
// collection threshold, creates the initial context, and installs the
// polyfills. On partial failure everything already allocated is released;
// the engine stays dead rather than half-constructed. Calling Initialize
// on a live engine is a no-op.
func (e *Engine) Initialize() error {
	if e.Live() {
		return nil
	}
	rt := quickjs.NewRuntime(
		quickjs.WithMemoryLimit(uint64(e.cfg.MemoryLimitMB)*1024*1024),
		quickjs.WithGCThreshold(int64(e.cfg.GCThresholdKB)*1024),
		quickjs.WithExecuteTimeout(uint64(e.cfg.ExecTimeoutSec)),
	)
	ctx := rt.NewContext()
	if err := polyfill.Install(ctx, e.host, e.sched, e.cfg); err != nil {
		ctx.Close()
		rt.Close()
		return fmt.Errorf("installing polyfills: %w", err)
	}

	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		ctx.Close()
		rt.Close()
		return fmt.Errorf("seeding runtime id: %w", err)
	}

	e.rt = rt
	e.ctx = ctx
	e.runtimeID = binary.BigEndian.Uint64(seed[:])
	e.generation = 1
	e.sched.Reset()
	return nil
}

// Reset destroys the current context and creates a fresh one bound to the
// same runtime, reinstalling polyfills and bumping the generation counter.
// The heap ceiling and collection threshold are runtime-level and survive
// untouched. Compiled units from earlier generations are rejected by the
// codec afterwards.
func (e *Engine) Reset() error {
	if e.rt == nil {
		return core.ErrNotReady
	}
	if e.ctx != nil {
		e.ctx.Close()
	}
	e.ctx = e.rt.NewContext()
	e.generation++
	e.sched.Reset()
	if err := polyfill.Install(e.ctx, e.host, e.sched, e.cfg); err != nil {
		return fmt.Errorf("reinstalling polyfills: %w", err)
	}
	return nil
}

// Teardown destroys the context, then the runtime. Idempotent: tearing
// down twice or before Initialize is a no-op.
func (e *Engine) Teardown() {
	if e.ctx != nil {
		e.ctx.Close()
		e.ctx = nil
	}
	if e.rt != nil {
		e.rt.Close()
		e.rt = nil
	}
}

// Live reports whether both the runtime and a context exist.
func (e *Engine) Live() bool {
	return e.rt != nil && e.ctx != nil
}

// Generation returns the current context generation (0 before Initialize,
// 1 after, +1 per Reset).
func (e *Engine) Generation() uint32 {
	return e.generation
}

// Evaluate runs source as a top-level classic script in the current
// context and settles the completion value: pending jobs and deferred
// timers are drained to a fixed point, and a promise result is awaited
// until it settles or nothing schedulable remains.
func (e *Engine) Evaluate(source string) RawOutcome {
	if !e.Live() {
		return RawOutcome{Kind: RawError, Text: core.ErrNotReady.Error()}
	}
	res := e.ctx.Eval(source)
	if res.IsException() {
		defer res.Free()
		return RawOutcome{Kind: RawError, Text: exceptionText(res)}
	}
	// Ownership of the handle moves into the global object; the value is
	// released by the deferred delete in settleGlobal.
	e.ctx.Globals().Set(completionGlobal, res)
	return e.settleGlobal(completionGlobal)
}

// settleGlobal drains and, when the named global holds a promise, awaits
// it, returning the textual raw outcome. The global is deleted on return.
func (e *Engine) settleGlobal(name string) RawOutcome {
	defer e.evalQuiet(fmt.Sprintf("delete globalThis.%s;", name))

	e.drainJobs()

	if !e.evalBool(fmt.Sprintf("globalThis.%s instanceof Promise", name)) {
		return RawOutcome{Kind: RawValue, Text: e.stringifyGlobal(name)}
	}

	e.evalQuiet(fmt.Sprintf(`
		delete globalThis.__awaited_result;
		delete globalThis.__awaited_state;
		Promise.resolve(globalThis.%s).then(
			function(r) { globalThis.__awaited_result = r; globalThis.__awaited_state = 'fulfilled'; },
			function(e) { globalThis.__awaited_result = e; globalThis.__awaited_state = 'rejected'; }
		);`, name))
	defer e.evalQuiet("delete globalThis.__awaited_result; delete globalThis.__awaited_state;")

	deadline := time.Now().Add(time.Duration(e.cfg.ExecTimeoutSec) * time.Second)
	for {
		e.drainJobs()
		if e.stringifyGlobal("__awaited_state") != "undefined" {
			break
		}
		// Fixed point with the probe still pending: nothing left can ever
		// settle this promise.
		if !e.sched.HasPending() || time.Now().After(deadline) {
			return RawOutcome{Kind: RawRejection, Text: "promise never settled"}
		}
	}

	if e.stringifyGlobal("__awaited_state") == "rejected" {
		return RawOutcome{Kind: RawRejection, Text: e.rejectionMessage()}
	}
	return RawOutcome{Kind: RawValue, Text: e.stringifyGlobal("__awaited_result")}
}

// drainJobs pumps the engine job queue and fires deferred timer callbacks
// until neither has work left. Firing a callback may enqueue both more
// jobs and more timers, so the two alternate until a fixed point.
func (e *Engine) drainJobs() {
	for {
		e.ctx.Loop()
		id, ok := e.sched.Next()
		if !ok {
			return
		}
		e.fireTimer(id)
	}
}

// fireTimer invokes a deferred timer callback stored on the JS side.
func (e *Engine) fireTimer(id int) {
	e.evalQuiet(fmt.Sprintf(`(function() {
		var entry = globalThis.__timerCallbacks && globalThis.__timerCallbacks[%d];
		if (!entry) return;
		delete globalThis.__timerCallbacks[%d];
		entry.fn.apply(null, entry.args || []);
	})();`, id, id))
}

// rejectionMessage extracts the best-effort message from the awaited
// rejection value: string conversion first, then name/message properties,
// then a fixed fallback.
func (e *Engine) rejectionMessage() string {
	msg, err := e.evalString(`(function(v) {
		try { return String(v); } catch (e) {}
		try {
			var n = v && v.name ? String(v.name) : '';
			var m = v && v.message ? String(v.message) : '';
			if (n && m) return n + ': ' + m;
			if (n || m) return n + m;
		} catch (e2) {}
		return 'Unknown error';
	})(globalThis.__awaited_result)`)
	if err != nil || msg == "" {
		return "Unknown error"
	}
	return msg
}

// stringifyGlobal string-converts a global; undefined converts to the
// literal "undefined", and a throwing toString degrades to it as well.
func (e *Engine) stringifyGlobal(name string) string {
	s, err := e.evalString(fmt.Sprintf("String(globalThis.%s)", name))
	if err != nil {
		return "undefined"
	}
	return s
}

// evalString evaluates an expression and returns its string conversion.
func (e *Engine) evalString(src string) (string, error) {
	v := e.ctx.Eval(src)
	defer v.Free()
	if v.IsException() {
		return "", fmt.Errorf("evaluating expression: %s", exceptionText(v))
	}
	return v.String(), nil
}

// evalBool evaluates an expression as a boolean, false on any failure.
func (e *Engine) evalBool(src string) bool {
	s, err := e.evalString(fmt.Sprintf("String(!!(%s))", src))
	return err == nil && s == "true"
}

// evalQuiet evaluates housekeeping scripts whose failures are not
// actionable.
func (e *Engine) evalQuiet(src string) {
	v := e.ctx.Eval(src)
	v.Free()
}

// exceptionText renders an exception value: the engine's own error
// rendering first, the value's string form second, a fixed fallback last.
func exceptionText(v *quickjs.Value) string {
	if err := v.Error(); err != nil && err.Error() != "" {
		return err.Error()
	}
	if s := v.String(); s != "" {
		return s
	}
	return "Unknown error"
}
