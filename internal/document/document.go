package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/lazydoc/internal/decoder"
	"github.com/local/lazydoc/internal/fetch"
	"github.com/local/lazydoc/internal/metrics"
	"github.com/local/lazydoc/internal/pagerec"
	"github.com/local/lazydoc/internal/resolver"
)

// ErrDisposed is returned by every operation on a disposed document.
var ErrDisposed = errors.New("document disposed")

// PageDecoder is what a Document needs from the decode layer. Satisfied by
// *decoder.Handle; tests inject fakes through WithDecoder.
type PageDecoder interface {
	PageCount() int
	Geometry(ctx context.Context, index int) (pagerec.Geometry, error)
	Close() error
}

// Document is the top-level aggregate: one opened PDF with lazily
// resolved pages. Opening reads only document-level structure; page
// geometry is decoded on demand through the resolver.
type Document struct {
	ref     string
	digest  string
	pages   int
	records []*pagerec.Record

	disp    *resolver.Dispatcher
	dec     PageDecoder
	fetcher fetch.RangeFetcher
	cancel  context.CancelFunc

	events   chan Event
	evMu     sync.Mutex
	evClosed bool

	disposeOnce sync.Once
	disposed    chan struct{}
}

// Open probes the source, builds the decoder, and returns a document whose
// pages are all unresolved. No page geometry is decoded here.
func Open(ctx context.Context, src fetch.Source, opts ...Option) (*Document, error) {
	cfg := defaultOptions()
	for _, o := range opts {
		o(&cfg)
	}

	// Range reads made by later resolutions run under the document's own
	// lifetime context, never the opener's: the opener's request context
	// dies with the call that opened the document. While Open itself is
	// still running the two are linked, so a caller giving up mid-open
	// aborts the probe and decode.
	docCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		dec     PageDecoder
		fetcher fetch.RangeFetcher
		size    int64
	)

	if cfg.decoder != nil {
		dec = cfg.decoder
	} else {
		f, err := fetch.New(docCtx, src, cfg.fetchOpts)
		if err != nil {
			cancel()
			return nil, err
		}
		sz, _, err := f.Probe(docCtx)
		if err != nil {
			f.Close()
			cancel()
			return nil, err
		}
		h, err := decoder.Open(docCtx, src, f, sz, cfg.prompt)
		if err != nil {
			f.Close()
			cancel()
			return nil, err
		}
		dec, fetcher, size = h, f, sz
	}

	pages := dec.PageCount()
	if pages <= 0 {
		dec.Close()
		if fetcher != nil {
			fetcher.Close()
		}
		cancel()
		return nil, fmt.Errorf("document %s has no pages", src.Ref())
	}

	d := &Document{
		ref:      src.Ref(),
		digest:   docDigest(src.Ref(), size, pages),
		pages:    pages,
		records:  make([]*pagerec.Record, pages),
		dec:      dec,
		fetcher:  fetcher,
		cancel:   cancel,
		events:   make(chan Event, cfg.eventBuffer),
		disposed: make(chan struct{}),
	}
	for i := range d.records {
		d.records[i] = pagerec.New(i+1, cfg.fallback)
	}

	var cache resolver.GeometryCache
	if cfg.cache != nil {
		cache = cfg.cache.ForDocument(d.digest)
	}
	d.disp = resolver.New(d.records, dec, resolver.Config{
		BatchConcurrency: cfg.concurrency,
		MaxFailures:      cfg.maxFailures,
		Cache:            cache,
		Notify:           d.onResolved,
	})

	metrics.DocOpened()
	log.Info().Str("ref", d.ref).Str("digest", d.digest).Int("pages", pages).Msg("document opened")
	return d, nil
}

// docDigest identifies a document for caching: same ref with different
// size or page count gets a different digest.
func docDigest(ref string, size int64, pages int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", ref, size, pages)))
	return hex.EncodeToString(h[:8])
}

// Ref returns the source reference the document was opened from.
func (d *Document) Ref() string { return d.ref }

// Digest returns the cache identity of this document.
func (d *Document) Digest() string { return d.digest }

// PageCount returns the total page count, known from open time.
func (d *Document) PageCount() int { return d.pages }

// Page returns a handle for page n (1-based) without triggering any
// resolution.
func (d *Document) Page(n int) (*PageHandle, error) {
	if n < 1 || n > d.pages {
		return nil, &resolver.PageRangeError{Page: n, Count: d.pages}
	}
	return &PageHandle{doc: d, rec: d.records[n-1]}, nil
}

// EnsureResolved resolves page n, blocking until true geometry is
// available or the attempt fails.
func (d *Document) EnsureResolved(ctx context.Context, n int) (pagerec.Geometry, error) {
	if d.isDisposed() {
		return pagerec.Geometry{}, ErrDisposed
	}
	rec, err := d.disp.Resolve(ctx, n)
	if err != nil {
		return pagerec.Geometry{}, err
	}
	return rec.Dimensions(), nil
}

// ResolveMany resolves a batch of pages concurrently and reports each
// page's outcome independently.
func (d *Document) ResolveMany(ctx context.Context, pages []int) (map[int]bool, error) {
	if d.isDisposed() {
		return nil, ErrDisposed
	}
	return d.disp.ResolveMany(ctx, pages), nil
}

// ClearFailed makes a sticky-failed page eligible for resolution again.
func (d *Document) ClearFailed(n int) error {
	if d.isDisposed() {
		return ErrDisposed
	}
	return d.disp.ClearFailed(n)
}

func (d *Document) isDisposed() bool {
	select {
	case <-d.disposed:
		return true
	default:
		return false
	}
}

// Disposed reports whether Dispose has been called.
func (d *Document) Disposed() bool { return d.isDisposed() }

// Dispose releases the decoder and transport and fails all in-flight
// resolutions with ErrDisposed. Idempotent; safe while resolutions run.
func (d *Document) Dispose() {
	d.disposeOnce.Do(func() {
		close(d.disposed)
		d.cancel()
		d.disp.Close(ErrDisposed)
		if err := d.dec.Close(); err != nil {
			log.Warn().Err(err).Str("ref", d.ref).Msg("decoder close failed")
		}
		if d.fetcher != nil {
			if err := d.fetcher.Close(); err != nil {
				log.Warn().Err(err).Str("ref", d.ref).Msg("fetcher close failed")
			}
		}
		d.evMu.Lock()
		d.evClosed = true
		close(d.events)
		d.evMu.Unlock()
		metrics.DocClosed()
		log.Info().Str("ref", d.ref).Msg("document disposed")
	})
}
