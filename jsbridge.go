// Package jsbridge embeds a QuickJS engine behind a small, synchronous
// façade. A Bridge owns one engine instance, feeds it scripts, drains
// the resulting promise work, and keeps a history of everything it ran.
// Scripts see a browser-flavored environment (console, timers, fetch,
// XMLHttpRequest) whose network traffic is routed through a pluggable
// Transport on the Go side.
package jsbridge

import (
	"encoding/json"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/engine"
	"github.com/cryguy/jsbridge/internal/sched"
)

type bridgeState int

const (
	stateUninitialized bridgeState = iota
	stateReady
	stateDestroyed
)

func (s bridgeState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateReady:
		return "ready"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Bridge is the public entry point. All methods are safe for concurrent
// use; a single mutex serializes engine access.
type Bridge struct {
	mu  sync.Mutex
	cfg Config

	state  bridgeState
	engine *engine.Engine

	transport    Transport
	transportSet bool
	fetcher      Fetcher
	sched        Scheduler
	cache        *ScriptCache

	history   []ExecutionRecord
	execCount uint64
}

// Option customizes a Bridge at construction time.
type Option func(*Bridge)

// WithTransport replaces the default HTTP transport. Passing nil
// disables network access entirely; scripts then see a ReferenceError
// from fetch and XHR.
func WithTransport(t Transport) Option {
	return func(b *Bridge) {
		b.transport = t
		b.transportSet = true
	}
}

// WithFetcher replaces the default remote script fetcher.
func WithFetcher(f Fetcher) Option {
	return func(b *Bridge) {
		b.fetcher = f
	}
}

// WithScheduler replaces the default immediate timer scheduler.
func WithScheduler(s Scheduler) Option {
	return func(b *Bridge) {
		b.sched = s
	}
}

// WithScriptCache attaches a download cache consulted by ExecuteRemote.
func WithScriptCache(c *ScriptCache) Option {
	return func(b *Bridge) {
		b.cache = c
	}
}

// New builds a Bridge in the uninitialized state. Zero cfg fields fall
// back to DefaultConfig values. The engine is not created until
// Initialize.
func New(cfg Config, opts ...Option) *Bridge {
	b := &Bridge{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(b)
	}
	if !b.transportSet {
		b.transport = NewHTTPTransport(b.cfg)
	}
	if b.fetcher == nil {
		b.fetcher = NewHTTPFetcher(b.cfg)
	}
	if b.sched == nil {
		b.sched = sched.Immediate{}
	}
	b.engine = engine.New(core.Config(b.cfg), b.dispatch, b.sched)
	return b
}

// dispatch is the single native crossing for script HTTP. It runs
// re-entrantly from inside an evaluation while the bridge lock is held,
// so it must not touch the lock; transport and cfg are immutable after
// New.
func (b *Bridge) dispatch(url, optionsJSON string) (string, error) {
	if b.transport == nil {
		return "", core.ErrNoTransport
	}

	var opts struct {
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers"`
		Body    *string           `json:"body"`
		Timeout int               `json:"timeout"`
	}
	if err := json.Unmarshal([]byte(optionsJSON), &opts); err != nil {
		return "", fmt.Errorf("decoding request options: %w", err)
	}

	req := HostCallRequest{
		URL:       url,
		Method:    opts.Method,
		Headers:   opts.Headers,
		TimeoutMs: opts.Timeout,
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if req.TimeoutMs <= 0 {
		req.TimeoutMs = b.cfg.HTTPTimeoutMs
	}
	if opts.Body != nil {
		req.Body = *opts.Body
		req.HasBody = true
	}

	resp, err := b.transport.Perform(req)
	if err != nil {
		return "", err
	}
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encoding response: %w", err)
	}
	return string(out), nil
}

// Initialize creates the engine runtime and context and installs the
// polyfills. It reports success; calling it on an already Ready bridge
// is a no-op returning true, and a destroyed bridge can never be
// revived.
func (b *Bridge) Initialize() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateReady:
		return true
	case stateDestroyed:
		log.Printf("jsbridge: initialize called on destroyed bridge")
		return false
	}

	if err := b.engine.Initialize(); err != nil {
		log.Printf("jsbridge: initializing engine: %v", err)
		return false
	}
	b.state = stateReady
	return true
}

// Execute runs script source and returns its outcome. The script is
// recorded in history regardless of how it ends.
func (b *Bridge) Execute(script string) ExecutionOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executeLocked(script, script)
}

// executeLocked runs one script with b.mu held, recording the outcome
// under the given history label.
func (b *Bridge) executeLocked(script, label string) ExecutionOutcome {
	started := time.Now()
	outcome := b.runScript(script)
	b.record(label, started, outcome)
	return outcome
}

func (b *Bridge) runScript(script string) ExecutionOutcome {
	if b.state != stateReady {
		return notInitializedOutcome()
	}
	if script == "" {
		return inputRejectedOutcome("Script is empty")
	}
	if len(script) > b.cfg.MaxScriptChars {
		return inputRejectedOutcome(fmt.Sprintf(
			"Script exceeds maximum length of %d characters", b.cfg.MaxScriptChars))
	}
	b.execCount++
	return normalizeOutcome(b.engine.Evaluate(script))
}

// record prepends one history entry; history is most recent first.
func (b *Bridge) record(label string, started time.Time, outcome ExecutionOutcome) {
	rec := ExecutionRecord{
		Script:    label,
		Timestamp: started,
		Outcome:   outcome,
		Duration:  time.Since(started),
	}
	b.history = append([]ExecutionRecord{rec}, b.history...)
}

// Compile translates source to engine bytecode bound to the current
// runtime and context generation. It returns nil on any failure; the
// cause is logged.
func (b *Bridge) Compile(source string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != stateReady {
		log.Printf("jsbridge: compile called while %s", b.state)
		return nil
	}
	if source == "" {
		log.Printf("jsbridge: compile rejected: script is empty")
		return nil
	}
	if len(source) > b.cfg.MaxScriptChars {
		log.Printf("jsbridge: compile rejected: script exceeds %d characters", b.cfg.MaxScriptChars)
		return nil
	}

	unit, err := b.engine.Encode(source)
	if err != nil {
		log.Printf("jsbridge: compile failed: %v", err)
		return nil
	}
	return unit
}

// ExecuteCompiled runs a unit produced by Compile. Units survive only
// as long as the runtime and context that produced them; after Reset or
// a new Initialize the unit is rejected and must be recompiled.
func (b *Bridge) ExecuteCompiled(unit []byte) ExecutionOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	label := fmt.Sprintf("<compiled script %d bytes>", len(unit))
	started := time.Now()

	var outcome ExecutionOutcome
	switch {
	case b.state != stateReady:
		outcome = notInitializedOutcome()
	case len(unit) == 0:
		outcome = inputRejectedOutcome("Compiled script is empty")
	default:
		b.execCount++
		outcome = normalizeOutcome(b.engine.DecodeAndRun(unit))
	}

	b.record(label, started, outcome)
	return outcome
}

// Reset discards all script-visible state by replacing the engine
// context while keeping the runtime and its heap configuration. History
// is preserved. It reports success and is valid only in the Ready state.
func (b *Bridge) Reset() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != stateReady {
		log.Printf("jsbridge: reset called while %s", b.state)
		return false
	}
	if err := b.engine.Reset(); err != nil {
		log.Printf("jsbridge: resetting engine: %v", err)
		return false
	}
	return true
}

// Cleanup destroys the engine and moves the bridge to its terminal
// state. It is idempotent and safe to call from any state.
func (b *Bridge) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateDestroyed {
		return
	}
	b.engine.Teardown()
	b.state = stateDestroyed
}

// Live reports whether the bridge is Ready with a live engine context.
func (b *Bridge) Live() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateReady && b.engine.Live()
}

// MemoryStats returns a human-readable snapshot of the bridge. It is
// available in every state.
func (b *Bridge) MemoryStats() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	lines := []string{
		fmt.Sprintf("state: %s", b.state),
		fmt.Sprintf("heap ceiling: %d MiB", b.cfg.MemoryLimitMB),
		fmt.Sprintf("gc threshold: %d KiB", b.cfg.GCThresholdKB),
		fmt.Sprintf("context generation: %d", b.engine.Generation()),
		fmt.Sprintf("executions: %d", b.execCount),
		fmt.Sprintf("history records: %d", len(b.history)),
		fmt.Sprintf("host heap in use: %d bytes", m.HeapAlloc),
	}
	return strings.Join(lines, "\n")
}

// History returns a copy of the execution history, most recent first.
func (b *Bridge) History() []ExecutionRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ExecutionRecord, len(b.history))
	copy(out, b.history)
	return out
}

// ClearHistory drops all execution records.
func (b *Bridge) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}
