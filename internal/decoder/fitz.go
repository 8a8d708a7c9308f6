package decoder

import (
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/local/lazydoc/internal/pagerec"
)

// fitzDecoder decodes through MuPDF (go-fitz). Used for local and
// in-memory sources, where the whole content is already addressable.
type fitzDecoder struct {
	doc   *fitz.Document
	pages int
}

func openFitzPath(path string) (*fitzDecoder, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &fitzDecoder{doc: doc, pages: doc.NumPage()}, nil
}

func openFitzMemory(data []byte) (*fitzDecoder, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF from memory: %w", err)
	}
	return &fitzDecoder{doc: doc, pages: doc.NumPage()}, nil
}

func (f *fitzDecoder) PageCount() int { return f.pages }

func (f *fitzDecoder) Geometry(index int) (pagerec.Geometry, error) {
	if index < 1 || index > f.pages {
		return pagerec.Geometry{}, fmt.Errorf("page %d out of range (document has %d pages)", index, f.pages)
	}
	// go-fitz uses 0-based indexing
	bound, err := f.doc.Bound(index - 1)
	if err != nil {
		return pagerec.Geometry{}, fmt.Errorf("failed to read bounds of page %d: %w", index, err)
	}
	// MuPDF bounds are post-rotation, so the rotation is already baked
	// into width/height here.
	return pagerec.Geometry{
		Width:    float64(bound.Dx()),
		Height:   float64(bound.Dy()),
		Rotation: pagerec.RotateNone,
	}, nil
}

func (f *fitzDecoder) Close() error { return f.doc.Close() }
