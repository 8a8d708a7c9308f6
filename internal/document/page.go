package document

import (
	"context"

	"github.com/local/lazydoc/internal/pagerec"
)

// PageHandle is the caller-facing view of one page. Dimensions is always
// synchronous: it reports fallback geometry until the page resolves, and
// never triggers I/O by itself.
type PageHandle struct {
	doc *Document
	rec *pagerec.Record
}

// Number returns the 1-based page number.
func (p *PageHandle) Number() int { return p.rec.Number() }

// State returns the page's lifecycle state.
func (p *PageHandle) State() pagerec.State { return p.rec.State() }

// Resolved reports whether true geometry is available.
func (p *PageHandle) Resolved() bool { return p.rec.Resolved() }

// Dimensions returns the current geometry without blocking: true geometry
// once resolved, fallback dimensions otherwise.
func (p *PageHandle) Dimensions() pagerec.Geometry { return p.rec.Dimensions() }

// Failures returns how many resolution attempts have failed for this page.
func (p *PageHandle) Failures() int { return p.rec.Failures() }

// LastErr returns the most recent resolution failure, nil if none.
func (p *PageHandle) LastErr() error { return p.rec.LastErr() }

// EnsureResolved triggers (or joins) resolution of this page and blocks
// until it completes.
func (p *PageHandle) EnsureResolved(ctx context.Context) (pagerec.Geometry, error) {
	return p.doc.EnsureResolved(ctx, p.rec.Number())
}
