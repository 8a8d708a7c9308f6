package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ledongthuc/pdf"

	"github.com/local/lazydoc/internal/pagerec"
)

// rangeDecoder parses PDF structure through an io.ReaderAt, so every read
// turns into a byte-range fetch on the underlying source. Opening touches
// only the trailer, xref and page tree; page geometry windows are paged in
// on demand. This is the decoder for remote sources.
type rangeDecoder struct {
	r     *pdf.Reader
	pages int
}

// PasswordPrompt supplies credentials for an encrypted document. It is
// invoked at most once per open attempt; the empty password is always
// tried first by the parser itself.
type PasswordPrompt func(ctx context.Context) (string, error)

func openRange(ctx context.Context, ref string, ra io.ReaderAt, size int64, prompt PasswordPrompt) (dec *rangeDecoder, err error) {
	// The parser panics on malformed structure; surface that as a
	// corrupt-document error instead.
	defer func() {
		if r := recover(); r != nil {
			dec = nil
			err = &CorruptError{Ref: ref, Err: panicToErr(r)}
		}
	}()

	prompted := false
	pw := func() string {
		if prompt == nil || prompted {
			return ""
		}
		prompted = true
		s, perr := prompt(ctx)
		if perr != nil {
			return ""
		}
		return s
	}

	r, err := pdf.NewReaderEncrypted(ra, size, pw)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			if !prompted {
				return nil, ErrPasswordRequired
			}
			return nil, ErrInvalidPassword
		}
		return nil, &CorruptError{Ref: ref, Err: err}
	}

	pages := r.NumPage()
	if pages <= 0 {
		return nil, &CorruptError{Ref: ref, Err: fmt.Errorf("document has no pages")}
	}
	return &rangeDecoder{r: r, pages: pages}, nil
}

func (d *rangeDecoder) PageCount() int { return d.pages }

func (d *rangeDecoder) Geometry(index int) (g pagerec.Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: decode panic: %w", index, panicToErr(r))
		}
	}()

	if index < 1 || index > d.pages {
		return pagerec.Geometry{}, fmt.Errorf("page %d out of range (document has %d pages)", index, d.pages)
	}
	p := d.r.Page(index)
	if p.V.IsNull() {
		return pagerec.Geometry{}, fmt.Errorf("page %d: missing page object", index)
	}

	mb := inherited(p.V, "MediaBox")
	if mb.IsNull() || mb.Len() < 4 {
		return pagerec.Geometry{}, fmt.Errorf("page %d: missing MediaBox", index)
	}
	w := math.Abs(mb.Index(2).Float64() - mb.Index(0).Float64())
	h := math.Abs(mb.Index(3).Float64() - mb.Index(1).Float64())
	if w <= 0 || h <= 0 {
		return pagerec.Geometry{}, fmt.Errorf("page %d: degenerate MediaBox %gx%g", index, w, h)
	}

	rot := pagerec.RotateNone
	if rv := inherited(p.V, "Rotate"); !rv.IsNull() {
		rot = pagerec.NormalizeRotation(rv.Int64())
	}

	return pagerec.Geometry{Width: w, Height: h, Rotation: rot}, nil
}

func (d *rangeDecoder) Close() error { return nil }

// panicToErr converts a recovered panic value to an error, keeping the
// chain intact when the parser panicked with an error value so callers can
// still classify it with errors.Is/As.
func panicToErr(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

// inherited looks a key up on a page dict, walking Parent links the way
// PDF attribute inheritance works. Bounded to guard against parent cycles
// in hostile files.
func inherited(v pdf.Value, key string) pdf.Value {
	for i := 0; i < 64 && !v.IsNull(); i++ {
		if x := v.Key(key); !x.IsNull() {
			return x
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}
