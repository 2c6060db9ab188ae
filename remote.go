package jsbridge

import (
	"log"
	"regexp"

	"github.com/evanw/esbuild/pkg/api"
)

// RemoteCallbacks receive progress and completion notifications from
// ExecuteRemote. Any field may be nil.
type RemoteCallbacks struct {
	OnProgress func(message string)
	OnSuccess  func(rec ExecutionRecord)
	OnError    func(url, message string)
}

func (cb RemoteCallbacks) progress(message string) {
	if cb.OnProgress != nil {
		cb.OnProgress(message)
	}
}

func (cb RemoteCallbacks) success(rec ExecutionRecord) {
	if cb.OnSuccess != nil {
		cb.OnSuccess(rec)
	}
}

func (cb RemoteCallbacks) failure(url, message string) {
	if cb.OnError != nil {
		cb.OnError(url, message)
	}
}

var moduleSyntax = regexp.MustCompile(`(?m)^\s*(import|export)\b`)

// ExecuteRemote downloads a script from url and runs it, reporting
// through cb. ES module sources are bundled to a classic script first so
// the engine's plain evaluation path can run them. The execution lands
// in history like any other script.
func (b *Bridge) ExecuteRemote(url string, cb RemoteCallbacks) {
	cb.progress("Downloading script from " + url + "...")

	src := b.loadRemote(url)
	if src == nil {
		cb.failure(url, "failed to download script")
		return
	}

	script := *src
	if moduleSyntax.MatchString(script) {
		script = transformModule(script)
	}

	cb.progress("Executing script...")

	b.mu.Lock()
	outcome := b.executeLocked(script, script)
	rec := b.history[0]
	b.mu.Unlock()

	if outcome.Succeeded {
		cb.success(rec)
	} else {
		cb.failure(url, outcome.Text)
	}
}

// loadRemote fetches url, consulting the script cache when one is
// attached. Returns nil when the script could not be obtained.
func (b *Bridge) loadRemote(url string) *string {
	if b.cache != nil {
		if body := b.cache.Get(url); body != nil {
			return body
		}
	}
	if b.fetcher == nil {
		return nil
	}
	body := b.fetcher.DownloadText(url)
	if body == nil {
		return nil
	}
	if b.cache != nil {
		if err := b.cache.Put(url, *body); err != nil {
			log.Printf("jsbridge: caching %s: %v", url, err)
		}
	}
	return body
}

// transformModule rewrites an ES module to an IIFE that parks its
// exports on a global, then unwraps the default export so the script's
// completion value is the module's result. On transform errors the
// source is returned unchanged and the engine reports the syntax error.
func transformModule(source string) string {
	result := api.Transform(source, api.TransformOptions{
		Format:     api.FormatIIFE,
		GlobalName: "globalThis.__module_exports__",
		Target:     api.ESNext,
	})
	if len(result.Errors) > 0 {
		log.Printf("jsbridge: transforming module: %v", result.Errors[0].Text)
		return source
	}
	script := string(result.Code)
	script += "\nglobalThis.__module_exports__ = globalThis.__module_exports__.default || globalThis.__module_exports__;"
	return script
}
