package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/lazydoc/internal/metrics"
)

// httpFetcher acquires ranges over HTTP. The capability probe runs once;
// when the origin does not honor Range requests every FetchRange is served
// from a single cached full-body download.
type httpFetcher struct {
	src     RemoteURL
	client  *http.Client
	retries int

	mu     sync.Mutex
	probed bool
	size   int64
	ranges bool

	fullMu sync.Mutex
	full   []byte
}

func newHTTPFetcher(src RemoteURL, opts Options) *httpFetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.HTTPTimeout}
	}
	return &httpFetcher{src: src, client: client, retries: opts.Retries}
}

func (h *httpFetcher) applyHeaders(req *http.Request) {
	for k, vs := range h.src.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

func (h *httpFetcher) Probe(ctx context.Context) (int64, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.probed {
		return h.size, h.ranges, nil
	}

	size, ranges, err := h.probeHead(ctx)
	if err != nil || size < 0 {
		// Some origins refuse HEAD or omit Content-Length; a one-byte
		// ranged GET answers both questions.
		size, ranges, err = h.probeRangedGet(ctx)
		if err != nil {
			return 0, false, &ProbeError{Ref: h.src.URL, Err: err}
		}
	}
	if size < 0 {
		return 0, false, &ProbeError{Ref: h.src.URL, Err: fmt.Errorf("origin did not report content length")}
	}

	h.size = size
	h.ranges = ranges
	h.probed = true
	log.Debug().Str("url", h.src.URL).Int64("size", size).Bool("ranges", ranges).Msg("probed remote source")
	return h.size, h.ranges, nil
}

func (h *httpFetcher) probeHead(ctx context.Context) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.src.URL, nil)
	if err != nil {
		return 0, false, err
	}
	h.applyHeaders(req)
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, false, &HTTPStatusError{StatusCode: resp.StatusCode, URL: h.src.URL}
	}
	ranges := strings.Contains(strings.ToLower(resp.Header.Get("Accept-Ranges")), "bytes")
	return resp.ContentLength, ranges, nil
}

func (h *httpFetcher) probeRangedGet(ctx context.Context) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.src.URL, nil)
	if err != nil {
		return 0, false, err
	}
	h.applyHeaders(req)
	req.Header.Set("Range", "bytes=0-0")
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1))

	switch resp.StatusCode {
	case http.StatusPartialContent:
		total, err := parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if err != nil {
			return 0, false, err
		}
		return total, true, nil
	case http.StatusOK:
		return resp.ContentLength, false, nil
	default:
		return 0, false, &HTTPStatusError{StatusCode: resp.StatusCode, URL: h.src.URL}
	}
}

// parseContentRangeTotal extracts the total from "bytes 0-0/12345".
func parseContentRangeTotal(v string) (int64, error) {
	i := strings.LastIndex(v, "/")
	if i < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("origin did not report total length in Content-Range")
	}
	return strconv.ParseInt(total, 10, 64)
}

func (h *httpFetcher) FetchRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if _, _, err := h.Probe(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	ranges := h.ranges
	h.mu.Unlock()

	if !ranges {
		if err := h.ensureFull(ctx); err != nil {
			return nil, err
		}
		h.fullMu.Lock()
		defer h.fullMu.Unlock()
		return sliceRange(h.src.URL, h.full, offset, length)
	}

	var lastErr error
	for attempt := 0; attempt <= h.retries; attempt++ {
		b, err := h.fetchRangeOnce(ctx, offset, length)
		if err == nil {
			metrics.ObserveRangeFetch("http", "ok", len(b))
			return b, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		log.Warn().Err(err).Str("url", h.src.URL).Int64("offset", offset).Int("attempt", attempt+1).Msg("range fetch retry")
	}
	metrics.ObserveRangeFetch("http", "error", 0)
	return nil, &FetchError{Ref: h.src.URL, Offset: offset, Length: length, Err: lastErr}
}

func (h *httpFetcher) fetchRangeOnce(ctx context.Context, offset, length int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.src.URL, nil)
	if err != nil {
		return nil, err
	}
	h.applyHeaders(req)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return io.ReadAll(resp.Body)
	case http.StatusOK:
		// Origin ignored the Range header after advertising support.
		// Swallow the full body once and fall back to slicing.
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.ranges = false
		h.mu.Unlock()
		h.fullMu.Lock()
		h.full = body
		h.fullMu.Unlock()
		return sliceRange(h.src.URL, body, offset, length)
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, io.EOF
	default:
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: h.src.URL}
	}
}

// ensureFull downloads the entire content exactly once.
func (h *httpFetcher) ensureFull(ctx context.Context) error {
	h.fullMu.Lock()
	defer h.fullMu.Unlock()
	if h.full != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.src.URL, nil)
	if err != nil {
		return &FetchError{Ref: h.src.URL, Err: err}
	}
	h.applyHeaders(req)
	resp, err := h.client.Do(req)
	if err != nil {
		metrics.ObserveRangeFetch("http", "error", 0)
		return &FetchError{Ref: h.src.URL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveRangeFetch("http", "error", 0)
		return &FetchError{Ref: h.src.URL, Err: &HTTPStatusError{StatusCode: resp.StatusCode, URL: h.src.URL}}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveRangeFetch("http", "error", 0)
		return &FetchError{Ref: h.src.URL, Err: err}
	}
	h.full = body
	h.mu.Lock()
	h.size = int64(len(body))
	h.mu.Unlock()
	metrics.ObserveRangeFetch("http", "full_download", len(body))
	log.Info().Str("url", h.src.URL).Int("bytes", len(body)).Msg("origin lacks range support; cached full content")
	return nil
}

func (h *httpFetcher) Close() error {
	h.fullMu.Lock()
	h.full = nil
	h.fullMu.Unlock()
	return nil
}
