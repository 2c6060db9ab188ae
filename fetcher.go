package jsbridge

import (
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPFetcher is the stock Fetcher for remote script downloads. It is
// deliberately forgiving: every failure mode logs and yields nil so the
// remote-execution path can report a single "failed to download" error.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher builds a fetcher using cfg's download limit and timeout.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.DownloadTimeoutSec) * time.Second,
		},
		maxBytes: cfg.MaxDownloadBytes,
	}
}

// DownloadText fetches url and returns its body as text, or nil on any
// failure.
func (f *HTTPFetcher) DownloadText(url string) *string {
	resp, err := f.client.Get(url)
	if err != nil {
		log.Printf("jsbridge: downloading %s: %v", url, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("jsbridge: downloading %s: status %d", url, resp.StatusCode)
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxBytes)+1))
	if err != nil {
		log.Printf("jsbridge: reading %s: %v", url, err)
		return nil
	}
	if len(raw) > f.maxBytes {
		log.Printf("jsbridge: downloading %s: body exceeds %d bytes", url, f.maxBytes)
		return nil
	}

	text := string(raw)
	return &text
}
