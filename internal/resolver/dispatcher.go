package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/lazydoc/internal/metrics"
	"github.com/local/lazydoc/internal/pagerec"
)

// GeometrySource is where resolutions actually come from; in production a
// decoder.Handle, in tests a fake.
type GeometrySource interface {
	PageCount() int
	Geometry(ctx context.Context, index int) (pagerec.Geometry, error)
}

// GeometryCache is an optional read-through cache of resolved geometry,
// consulted before touching the decoder and written back after a
// successful decode. Both methods are best-effort.
type GeometryCache interface {
	Get(ctx context.Context, page int) (pagerec.Geometry, bool, error)
	Put(ctx context.Context, page int, g pagerec.Geometry) error
}

// Config tunes a Dispatcher.
type Config struct {
	// BatchConcurrency bounds how many ResolveMany fan-out workers run at
	// once, so a big batch cannot saturate the decoder or transport.
	BatchConcurrency int

	// MaxFailures is how many failed attempts a page accumulates before
	// its failure becomes sticky. The default of 2 gives every page one
	// automatic retry on the next explicit resolve.
	MaxFailures int

	// Cache, when non-nil, short-circuits decodes for pages resolved in a
	// previous incarnation of the same document.
	Cache GeometryCache

	// Notify is called after each completed resolution with err == nil on
	// success. Called from the resolution goroutine.
	Notify func(page int, err error)
}

type inflight struct {
	done      chan struct{}
	rec       *pagerec.Record
	err       error
	completed bool
}

// Dispatcher deduplicates and orchestrates page resolutions. The central
// invariant: at most one live resolution per page index, ever. Concurrent
// callers for the same page share one outcome.
type Dispatcher struct {
	records     []*pagerec.Record
	source      GeometrySource
	cache       GeometryCache
	notify      func(int, error)
	sem         chan struct{}
	maxFailures int

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	inflight map[int]*inflight
	closed   bool
	closeErr error
}

// New creates a dispatcher over the given records and source. records must
// be indexed pageNumber-1 and match source.PageCount().
func New(records []*pagerec.Record, source GeometrySource, cfg Config) *Dispatcher {
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 2
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(int, error) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		records:     records,
		source:      source,
		cache:       cfg.Cache,
		notify:      notify,
		sem:         make(chan struct{}, cfg.BatchConcurrency),
		maxFailures: cfg.MaxFailures,
		baseCtx:     ctx,
		cancel:      cancel,
		inflight:    make(map[int]*inflight),
	}
}

func (d *Dispatcher) record(n int) (*pagerec.Record, error) {
	if n < 1 || n > len(d.records) {
		return nil, &PageRangeError{Page: n, Count: len(d.records)}
	}
	return d.records[n-1], nil
}

// Resolve returns the record for page n with true geometry published,
// performing or joining the resolution as needed. Resolved pages return
// immediately with no I/O. A previously failed page gets one automatic
// retry; after that the failure is sticky until ClearFailed.
func (d *Dispatcher) Resolve(ctx context.Context, n int) (*pagerec.Record, error) {
	rec, err := d.record(n)
	if err != nil {
		return nil, err
	}
	if rec.Resolved() {
		metrics.IncResolution("cached")
		return rec, nil
	}

	d.mu.Lock()
	if d.closed {
		err := d.closeErr
		d.mu.Unlock()
		return nil, err
	}
	if fl, ok := d.inflight[n]; ok {
		d.mu.Unlock()
		return d.wait(ctx, fl)
	}
	// Re-check under the lock: the page may have resolved while we were
	// acquiring it.
	if rec.State() == pagerec.StateResolved {
		d.mu.Unlock()
		return rec, nil
	}
	if rec.State() == pagerec.StateFailed && rec.Failures() >= d.maxFailures {
		d.mu.Unlock()
		metrics.IncResolution("sticky")
		return nil, &ResolutionError{Page: n, Err: rec.LastErr()}
	}
	if err := rec.MarkResolving(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	fl := &inflight{done: make(chan struct{})}
	d.inflight[n] = fl
	d.mu.Unlock()

	metrics.IncInflight()
	go d.run(n, rec, fl)
	return d.wait(ctx, fl)
}

func (d *Dispatcher) wait(ctx context.Context, fl *inflight) (*pagerec.Record, error) {
	select {
	case <-fl.done:
		return fl.rec, fl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) run(n int, rec *pagerec.Record, fl *inflight) {
	defer metrics.DecInflight()
	start := time.Now()

	g, fromCache := d.cacheLookup(n)
	var err error
	if !fromCache {
		g, err = d.source.Geometry(d.baseCtx, n)
	}

	if err != nil {
		if d.isClosed() || errors.Is(err, context.Canceled) {
			// Disposed mid-flight: the page never attempted in earnest,
			// leave it retryable for a future open.
			rec.Reset()
			d.complete(n, fl, nil, d.closeError())
			return
		}
		if terr := rec.MarkFailed(err); terr != nil {
			log.Error().Err(terr).Int("page", n).Msg("record transition failed")
		}
		metrics.ObserveResolution("failed", time.Since(start))
		log.Warn().Err(err).Int("page", n).Msg("page resolution failed")
		d.notify(n, err)
		d.complete(n, fl, nil, &ResolutionError{Page: n, Err: err})
		return
	}

	if terr := rec.MarkResolved(g); terr != nil {
		log.Error().Err(terr).Int("page", n).Msg("record transition failed")
		d.complete(n, fl, nil, terr)
		return
	}
	if !fromCache {
		d.cacheStore(n, g)
	}
	metrics.ObserveResolution("resolved", time.Since(start))
	log.Debug().Int("page", n).Float64("w", g.Width).Float64("h", g.Height).Int("rot", int(g.Rotation)).Dur("took", time.Since(start)).Msg("page resolved")
	d.notify(n, nil)
	d.complete(n, fl, rec, nil)
}

func (d *Dispatcher) complete(n int, fl *inflight, rec *pagerec.Record, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fl.completed {
		return
	}
	fl.rec, fl.err = rec, err
	fl.completed = true
	close(fl.done)
	delete(d.inflight, n)
}

func (d *Dispatcher) cacheLookup(n int) (pagerec.Geometry, bool) {
	if d.cache == nil {
		return pagerec.Geometry{}, false
	}
	ctx, cancel := context.WithTimeout(d.baseCtx, 2*time.Second)
	defer cancel()
	g, ok, err := d.cache.Get(ctx, n)
	if err != nil {
		metrics.CacheError()
		log.Debug().Err(err).Int("page", n).Msg("geometry cache lookup failed")
		return pagerec.Geometry{}, false
	}
	if !ok {
		metrics.CacheMiss()
		return pagerec.Geometry{}, false
	}
	metrics.CacheHit()
	return g, true
}

func (d *Dispatcher) cacheStore(n int, g pagerec.Geometry) {
	if d.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.cache.Put(ctx, n, g); err != nil {
		log.Debug().Err(err).Int("page", n).Msg("geometry cache write failed")
	}
}

// ResolveMany fans out Resolve for each distinct page, bounded by the
// batch concurrency limit. One page failing never aborts the others; the
// returned map reports each page's outcome independently. Out-of-range
// pages report false.
func (d *Dispatcher) ResolveMany(ctx context.Context, pages []int) map[int]bool {
	results := make(map[int]bool, len(pages))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	seen := make(map[int]struct{}, len(pages))
	for _, n := range pages {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			select {
			case d.sem <- struct{}{}:
				defer func() { <-d.sem }()
			case <-ctx.Done():
				mu.Lock()
				results[n] = false
				mu.Unlock()
				return
			}
			_, err := d.Resolve(ctx, n)
			mu.Lock()
			results[n] = err == nil
			mu.Unlock()
		}(n)
	}
	wg.Wait()
	return results
}

// ClearFailed resets a sticky-failed page so the next Resolve attempts a
// fresh decode. No-op for pages in any other state.
func (d *Dispatcher) ClearFailed(n int) error {
	rec, err := d.record(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	if _, busy := d.inflight[n]; busy {
		d.mu.Unlock()
		return fmt.Errorf("page %d: resolution in flight", n)
	}
	d.mu.Unlock()
	if rec.State() == pagerec.StateFailed {
		rec.Reset()
	}
	return nil
}

// InflightCount reports how many resolutions are currently live.
func (d *Dispatcher) InflightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) closeError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closeErr != nil {
		return d.closeErr
	}
	return errors.New("resolver: dispatcher closed")
}

// Close rejects new work and fails every in-flight waiter with err (all
// waiters unblock; nothing hangs). Idempotent.
func (d *Dispatcher) Close(err error) {
	if err == nil {
		err = errors.New("resolver: dispatcher closed")
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.closeErr = err
	for n, fl := range d.inflight {
		if !fl.completed {
			fl.err = err
			fl.completed = true
			close(fl.done)
		}
		delete(d.inflight, n)
	}
	d.mu.Unlock()
	d.cancel()
}
