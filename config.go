package jsbridge

// Config holds every tunable of a Bridge. The zero value of any field
// means "use the default"; New fills the gaps from DefaultConfig. The
// struct is mirrored field for field by internal/core.Config so it can
// be handed across the package boundary with a plain conversion.
type Config struct {
	MemoryLimitMB      int // QuickJS heap ceiling in MiB
	GCThresholdKB      int // allocation delta that triggers a GC pass, in KiB
	MaxScriptChars     int // longest accepted script source, in characters
	HTTPTimeoutMs      int // default fetch/XHR request timeout
	MaxResponseBytes   int // largest HTTP response body the transport will accept
	MaxDownloadBytes   int // largest remote script the fetcher will accept
	DownloadTimeoutSec int // remote script download timeout
	ExecTimeoutSec     int // wall-clock limit for a single evaluation
}

// DefaultConfig returns the stock tuning: a 64 MiB heap, a 1 MiB GC
// threshold, 10000-character scripts and 30-second network deadlines.
func DefaultConfig() Config {
	return Config{
		MemoryLimitMB:      64,
		GCThresholdKB:      1024,
		MaxScriptChars:     10000,
		HTTPTimeoutMs:      30000,
		MaxResponseBytes:   10 << 20,
		MaxDownloadBytes:   10 << 20,
		DownloadTimeoutSec: 30,
		ExecTimeoutSec:     30,
	}
}

// withDefaults replaces zero fields with their DefaultConfig values.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = def.MemoryLimitMB
	}
	if c.GCThresholdKB <= 0 {
		c.GCThresholdKB = def.GCThresholdKB
	}
	if c.MaxScriptChars <= 0 {
		c.MaxScriptChars = def.MaxScriptChars
	}
	if c.HTTPTimeoutMs <= 0 {
		c.HTTPTimeoutMs = def.HTTPTimeoutMs
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = def.MaxResponseBytes
	}
	if c.MaxDownloadBytes <= 0 {
		c.MaxDownloadBytes = def.MaxDownloadBytes
	}
	if c.DownloadTimeoutSec <= 0 {
		c.DownloadTimeoutSec = def.DownloadTimeoutSec
	}
	if c.ExecTimeoutSec <= 0 {
		c.ExecTimeoutSec = def.ExecTimeoutSec
	}
	return c
}
