package core

// Config holds runtime configuration for an embedding bridge instance.
// It mirrors the public jsbridge.Config field for field so the root
// package can convert between the two at the engine boundary.
type Config struct {
	MemoryLimitMB      int // runtime heap ceiling in MiB, fixed for the runtime's lifetime
	GCThresholdKB      int // incremental-collection trigger in KiB, fixed at initialize
	MaxScriptChars     int // longest accepted script source, in characters
	HTTPTimeoutMs      int // default timeout for script-initiated network calls
	MaxResponseBytes   int // cap on transport response bodies
	MaxDownloadBytes   int // cap on remote script downloads
	DownloadTimeoutSec int // remote script download timeout in seconds
	ExecTimeoutSec     int // hard ceiling on a single evaluation in seconds
}
