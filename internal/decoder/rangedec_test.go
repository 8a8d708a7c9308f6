package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/local/lazydoc/internal/pagerec"
	"github.com/local/lazydoc/internal/pdftest"
)

func openTestRange(t *testing.T, data []byte, prompt PasswordPrompt) *rangeDecoder {
	t.Helper()
	dec, err := openRange(context.Background(), "mem://test.pdf", bytes.NewReader(data), int64(len(data)), prompt)
	if err != nil {
		t.Fatalf("openRange: %v", err)
	}
	return dec
}

func TestRangeDecoderPageCount(t *testing.T) {
	data := pdftest.GenerateUniform(7, 612, 792)
	dec := openTestRange(t, data, nil)
	defer dec.Close()
	if dec.PageCount() != 7 {
		t.Errorf("PageCount() = %d, want 7", dec.PageCount())
	}
}

func TestRangeDecoderGeometry(t *testing.T) {
	data := pdftest.Generate([]pdftest.PageSpec{
		{Width: 612, Height: 792},
		{Width: 842, Height: 595, Rotate: 90},
		{}, // inherits the document default MediaBox
		{Width: 200, Height: 400, Rotate: -90},
		{Width: 300, Height: 300, Rotate: 450},
	})
	dec := openTestRange(t, data, nil)
	defer dec.Close()

	tests := []struct {
		page int
		want pagerec.Geometry
	}{
		{1, pagerec.Geometry{Width: 612, Height: 792}},
		{2, pagerec.Geometry{Width: 842, Height: 595, Rotation: pagerec.Rotate90}},
		{3, pagerec.Geometry{Width: pdftest.DefaultWidth, Height: pdftest.DefaultHeight}},
		{4, pagerec.Geometry{Width: 200, Height: 400, Rotation: pagerec.Rotate270}},
		{5, pagerec.Geometry{Width: 300, Height: 300, Rotation: pagerec.Rotate90}},
	}
	for _, tt := range tests {
		got, err := dec.Geometry(tt.page)
		if err != nil {
			t.Errorf("Geometry(%d): %v", tt.page, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Geometry(%d) = %+v, want %+v", tt.page, got, tt.want)
		}
	}
}

func TestRangeDecoderPageOutOfRange(t *testing.T) {
	data := pdftest.GenerateUniform(2, 612, 792)
	dec := openTestRange(t, data, nil)
	defer dec.Close()

	for _, page := range []int{0, -1, 3} {
		if _, err := dec.Geometry(page); err == nil {
			t.Errorf("Geometry(%d) succeeded, want error", page)
		}
	}
}

func TestRangeDecoderCorruptInput(t *testing.T) {
	_, err := openRange(context.Background(), "mem://junk", bytes.NewReader([]byte("this is not a pdf at all, not even close......")), 46, nil)
	if err == nil {
		t.Fatal("openRange on junk succeeded")
	}
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Errorf("err = %T (%v), want *CorruptError", err, err)
	}
}

func TestRangeDecoderTruncatedInput(t *testing.T) {
	data := pdftest.GenerateUniform(3, 612, 792)
	truncated := data[:len(data)/2]
	if _, err := openRange(context.Background(), "mem://trunc", bytes.NewReader(truncated), int64(len(truncated)), nil); err == nil {
		t.Fatal("openRange on truncated content succeeded")
	}
}

func TestPanicToErrKeepsErrorChain(t *testing.T) {
	sentinel := errors.New("link down")

	got := panicToErr(sentinel)
	if !errors.Is(got, sentinel) {
		t.Errorf("panicToErr(error) severed the chain: %v", got)
	}
	wrapped := fmt.Errorf("page 3: decode panic: %w", panicToErr(fmt.Errorf("read: %w", sentinel)))
	if !errors.Is(wrapped, sentinel) {
		t.Errorf("wrapped panic error severed the chain: %v", wrapped)
	}

	if got := panicToErr("index out of range"); got == nil || got.Error() != "index out of range" {
		t.Errorf("panicToErr(string) = %v", got)
	}
}

// flakyReaderAt serves reads until told to fail, simulating a transport
// that dies after open.
type flakyReaderAt struct {
	r    *bytes.Reader
	fail bool
	err  error
}

func (f *flakyReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if f.fail {
		return 0, f.err
	}
	return f.r.ReadAt(p, off)
}

func TestRangeDecoderGeometrySurvivesReadFailure(t *testing.T) {
	data := pdftest.GenerateUniform(2, 612, 792)
	sentinel := errors.New("link down")
	ra := &flakyReaderAt{r: bytes.NewReader(data), err: sentinel}

	dec, err := openRange(context.Background(), "mem://flaky", ra, int64(len(data)), nil)
	if err != nil {
		t.Fatalf("openRange: %v", err)
	}
	defer dec.Close()

	// Later reads fail; Geometry must return an error, never panic.
	ra.fail = true
	if _, err := dec.Geometry(1); err == nil {
		t.Fatal("Geometry with failing reads succeeded")
	}
}

func TestRangeDecoderPromptNotCalledForPlainDocument(t *testing.T) {
	data := pdftest.GenerateUniform(1, 612, 792)
	called := false
	prompt := func(ctx context.Context) (string, error) {
		called = true
		return "pw", nil
	}
	dec := openTestRange(t, data, prompt)
	defer dec.Close()
	if called {
		t.Error("password prompt invoked for unencrypted document")
	}
}
