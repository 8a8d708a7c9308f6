package pagerec

import (
	"fmt"
	"sync"
)

// State describes where a page is in its resolution lifecycle.
type State int

const (
	StateUnresolved State = iota
	StateResolving
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Rotation is a page rotation in degrees, clockwise.
type Rotation int

const (
	RotateNone Rotation = 0
	Rotate90   Rotation = 90
	Rotate180  Rotation = 180
	Rotate270  Rotation = 270
)

// NormalizeRotation maps an arbitrary /Rotate value onto the four legal
// quadrant rotations. PDF producers occasionally emit negative or >360 values.
func NormalizeRotation(deg int64) Rotation {
	d := ((deg % 360) + 360) % 360
	switch d {
	case 90:
		return Rotate90
	case 180:
		return Rotate180
	case 270:
		return Rotate270
	default:
		return RotateNone
	}
}

// Geometry is the resolved size and rotation of a page.
type Geometry struct {
	Width    float64
	Height   float64
	Rotation Rotation
}

// Fallback dimensions reported while a page is not yet resolved (A4 in
// PostScript points, the usual placeholder for unknown page sizes).
const (
	FallbackWidth  = 595.0
	FallbackHeight = 842.0
)

// Record holds the per-page state. All mutation goes through the Mark*
// methods; the zero-I/O accessors are safe from any goroutine and never
// block. The resolved geometry is published as a whole tuple under the
// mutex, never field by field.
type Record struct {
	number int

	mu       sync.Mutex
	state    State
	geom     Geometry
	fallback Geometry
	failures int
	lastErr  error
}

// New creates a record in StateUnresolved reporting the given fallback
// dimensions until resolution completes.
func New(number int, fallback Geometry) *Record {
	if fallback.Width <= 0 || fallback.Height <= 0 {
		fallback = Geometry{Width: FallbackWidth, Height: FallbackHeight}
	}
	return &Record{number: number, state: StateUnresolved, fallback: fallback}
}

// Number returns the 1-based page number.
func (r *Record) Number() int { return r.number }

// State returns the current lifecycle state.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Resolved reports whether true geometry is available.
func (r *Record) Resolved() bool { return r.State() == StateResolved }

// Dimensions returns the resolved geometry, or the fallback constants for
// any non-resolved state. It never blocks and never returns a zero size.
func (r *Record) Dimensions() Geometry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateResolved {
		return r.geom
	}
	return r.fallback
}

// Failures returns how many resolution attempts have failed so far.
func (r *Record) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

// LastErr returns the error recorded by the most recent failed attempt.
func (r *Record) LastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// MarkResolving moves the record into StateResolving. Legal from
// StateUnresolved and StateFailed (retry).
func (r *Record) MarkResolving() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateUnresolved, StateFailed:
		r.state = StateResolving
		return nil
	default:
		return &TransitionError{Page: r.number, From: r.state, To: StateResolving}
	}
}

// MarkResolved publishes the resolved geometry. Resolution is permanent:
// once resolved the record never leaves StateResolved.
func (r *Record) MarkResolved(g Geometry) error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("page %d: non-positive geometry %gx%g", r.number, g.Width, g.Height)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateResolving {
		return &TransitionError{Page: r.number, From: r.state, To: StateResolved}
	}
	r.state = StateResolved
	r.geom = g
	r.lastErr = nil
	return nil
}

// MarkFailed records a failed attempt. The page keeps reporting fallback
// dimensions and stays retryable.
func (r *Record) MarkFailed(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateResolving {
		return &TransitionError{Page: r.number, From: r.state, To: StateFailed}
	}
	r.state = StateFailed
	r.failures++
	r.lastErr = err
	return nil
}

// Reset returns a failed or abandoned in-flight record to StateUnresolved
// and clears its failure history. Resolved records are left untouched.
func (r *Record) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateResolved {
		return
	}
	r.state = StateUnresolved
	r.failures = 0
	r.lastErr = nil
}

// TransitionError reports an illegal state transition.
type TransitionError struct {
	Page int
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("page %d: illegal transition %s -> %s", e.Page, e.From, e.To)
}
