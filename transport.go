package jsbridge

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/http2"
)

// HTTPTransport is the stock Transport, backed by net/http with HTTP/2
// enabled. Response decompression is handled here rather than by the
// standard library so the Accept-Encoding set by scripts is honored and
// the size limit applies to the decoded body.
type HTTPTransport struct {
	client  *http.Client
	maxBody int
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport builds a transport using cfg's response size limit
// and default timeout.
func NewHTTPTransport(cfg Config) *HTTPTransport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		// Decompression is done in Perform so the body limit counts
		// decoded bytes.
		DisableCompression: true,
	}
	if err := http2.ConfigureTransport(t); err != nil {
		log.Printf("jsbridge: enabling http2: %v", err)
	}
	return &HTTPTransport{
		client: &http.Client{
			Transport: t,
			Timeout:   time.Duration(cfg.HTTPTimeoutMs) * time.Millisecond,
		},
		maxBody: cfg.MaxResponseBytes,
	}
}

// Perform executes one request. Unrecognized methods are normalized to
// GET and request bodies are dropped for GET and HEAD.
func (h *HTTPTransport) Perform(req HostCallRequest) (HostCallResponse, error) {
	method := normalizeMethod(req.Method)

	var body io.Reader
	if req.HasBody && method != http.MethodGet && method != http.MethodHead {
		body = strings.NewReader(req.Body)
	}

	ctx := context.Background()
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return HostCallResponse{}, fmt.Errorf("building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("Accept-Encoding") == "" {
		httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return HostCallResponse{}, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(h.maxBody)+1))
	if err != nil {
		return HostCallResponse{}, fmt.Errorf("reading response body: %w", err)
	}
	if len(raw) > h.maxBody {
		return HostCallResponse{}, fmt.Errorf("response body exceeds %d bytes", h.maxBody)
	}

	decoded, err := decodeBody(raw, resp.Header.Get("Content-Encoding"), h.maxBody)
	if err != nil {
		return HostCallResponse{}, fmt.Errorf("decoding response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return HostCallResponse{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Headers:    headers,
		Body:       string(decoded),
	}, nil
}

// Reachable issues a HEAD request and reports whether it answered with a
// success status.
func (h *HTTPTransport) Reachable(url string) bool {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func normalizeMethod(method string) string {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case http.MethodGet:
		return http.MethodGet
	case http.MethodPost:
		return http.MethodPost
	case http.MethodPut:
		return http.MethodPut
	case http.MethodDelete:
		return http.MethodDelete
	case http.MethodPatch:
		return http.MethodPatch
	case http.MethodHead:
		return http.MethodHead
	default:
		return http.MethodGet
	}
}

// decodeBody reverses the Content-Encoding applied by the server. The
// limit applies to the decoded size.
func decodeBody(data []byte, encoding string, max int) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return data, nil
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(data))
		defer fl.Close()
		r = fl
	case "br":
		r = brotli.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}

	decoded, err := io.ReadAll(io.LimitReader(r, int64(max)+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing body: %w", err)
	}
	if len(decoded) > max {
		return nil, fmt.Errorf("decoded body exceeds %d bytes", max)
	}
	return decoded, nil
}
