package decoder

import (
	"context"
	"sync"

	"github.com/local/lazydoc/internal/pagerec"
)

// Decoder is the boundary to the underlying document decode engine. Page
// indices are 1-based. Implementations are NOT required to be safe for
// concurrent calls; all access must go through a Handle.
type Decoder interface {
	PageCount() int
	Geometry(index int) (pagerec.Geometry, error)
	Close() error
}

type geomResp struct {
	g   pagerec.Geometry
	err error
}

type geomReq struct {
	index int
	reply chan geomResp
}

// Handle owns a Decoder exclusively and funnels every call through a single
// worker goroutine, because the wrapped native library does not tolerate
// concurrent reentrant calls on one document handle. Callers from any
// goroutine may invoke Geometry concurrently; the decode calls themselves
// are serialized.
type Handle struct {
	dec   Decoder
	pages int

	reqs   chan geomReq
	done   chan struct{}
	exited chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewHandle wraps dec and starts the worker. The page count is captured
// once; PageCount never does I/O afterwards.
func NewHandle(dec Decoder) *Handle {
	h := &Handle{
		dec:    dec,
		pages:  dec.PageCount(),
		reqs:   make(chan geomReq),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go h.worker()
	return h
}

// PageCount returns the number of pages. O(1), no I/O.
func (h *Handle) PageCount() int { return h.pages }

// Geometry resolves the true geometry of a page through the serialized
// worker. It blocks until the decode completes, ctx is cancelled, or the
// handle is closed (ErrClosed).
func (h *Handle) Geometry(ctx context.Context, index int) (pagerec.Geometry, error) {
	req := geomReq{index: index, reply: make(chan geomResp, 1)}

	select {
	case h.reqs <- req:
	case <-h.done:
		return pagerec.Geometry{}, ErrClosed
	case <-ctx.Done():
		return pagerec.Geometry{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.g, resp.err
	case <-h.done:
		return pagerec.Geometry{}, ErrClosed
	case <-ctx.Done():
		return pagerec.Geometry{}, ctx.Err()
	}
}

func (h *Handle) worker() {
	defer close(h.exited)
	for {
		select {
		case <-h.done:
			return
		case req := <-h.reqs:
			g, err := h.dec.Geometry(req.index)
			// reply is buffered; never blocks even if the caller
			// gave up on ctx
			req.reply <- geomResp{g: g, err: err}
		}
	}
}

// Close releases the native resource exactly once. Pending and subsequent
// Geometry calls fail with ErrClosed. Safe to call multiple times.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.exited
		h.closeErr = h.dec.Close()
	})
	return h.closeErr
}
