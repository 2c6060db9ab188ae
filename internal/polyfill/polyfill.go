// Package polyfill installs the script-visible standard objects into a
// fresh context: console, timers, fetch, and XMLHttpRequest. Everything is
// built from primitives the engine already provides plus two native entry
// points: the host network call and the timer scheduling verdict. The same
// installation runs at initialize and after every context reset.
package polyfill

import (
	"fmt"

	"github.com/buke/quickjs-go"

	"github.com/cryguy/jsbridge/internal/core"
)

// Install wires the native entry points and evaluates the polyfill
// scripts, in dependency order.
func Install(ctx *quickjs.Context, host core.HostCall, sched core.Scheduler, cfg core.Config) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"host call", func() error { return SetupHostCall(ctx, host) }},
		{"console", func() error { return SetupConsole(ctx) }},
		{"timers", func() error { return SetupTimers(ctx, sched) }},
		{"fetch", func() error { return SetupFetch(ctx, cfg.HTTPTimeoutMs) }},
		{"xhr", func() error { return SetupXHR(ctx, cfg.HTTPTimeoutMs) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("installing %s polyfill: %w", step.name, err)
		}
	}
	return nil
}

// evalScript evaluates polyfill bootstrap source, converting an exception
// result into a Go error.
func evalScript(ctx *quickjs.Context, src string) error {
	v := ctx.Eval(src)
	defer v.Free()
	if v.IsException() {
		if err := v.Error(); err != nil {
			return err
		}
		return fmt.Errorf("polyfill script failed")
	}
	return nil
}
