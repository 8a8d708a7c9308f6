package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RangeFetcher acquires byte windows of a document source. Implementations
// with no native range support service FetchRange by downloading the whole
// content once and slicing the cached buffer, so callers never care which
// path they got.
type RangeFetcher interface {
	// Probe is the one-time capability check: total size plus whether the
	// origin honors partial fetches. Safe to call more than once; only the
	// first call does I/O.
	Probe(ctx context.Context) (size int64, supportsRanges bool, err error)

	// FetchRange returns the bytes in [offset, offset+length). A short
	// result is only possible at end of content. Concurrent calls for
	// distinct or overlapping ranges may proceed in parallel.
	FetchRange(ctx context.Context, offset, length int64) ([]byte, error)

	Close() error
}

// Options tunes fetcher construction.
type Options struct {
	HTTPTimeout time.Duration
	Retries     int // internal retries per range on transient failure
	Client      *http.Client
}

func (o Options) withDefaults() Options {
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 60 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

// New builds the fetcher matching the source kind.
func New(ctx context.Context, src Source, opts Options) (RangeFetcher, error) {
	opts = opts.withDefaults()
	switch s := src.(type) {
	case LocalPath:
		return newLocalFetcher(string(s)), nil
	case InMemoryBytes:
		return newMemoryFetcher(s.Ref(), s.Data), nil
	case RemoteURL:
		return newHTTPFetcher(s, opts), nil
	case S3Object:
		return newS3Fetcher(ctx, s, opts)
	default:
		return nil, fmt.Errorf("unsupported source kind %T", src)
	}
}

// NewReaderAt adapts a fetcher to io.ReaderAt so range-capable decoders can
// page in exactly the byte windows they touch. The context is captured at
// construction because io.ReaderAt has no room for one; the document's
// lifetime context is the right choice.
func NewReaderAt(ctx context.Context, f RangeFetcher) io.ReaderAt {
	return &readerAt{ctx: ctx, f: f}
}

type readerAt struct {
	ctx context.Context
	f   RangeFetcher
}

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	b, err := r.f.FetchRange(r.ctx, off, int64(len(p)))
	n := copy(p, b)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// sliceRange cuts [off, off+length) out of a fully cached buffer, clamping
// at the tail the way ReadAt semantics expect.
func sliceRange(ref string, buf []byte, off, length int64) ([]byte, error) {
	if off < 0 || length < 0 {
		return nil, &FetchError{Ref: ref, Offset: off, Length: length, Err: fmt.Errorf("negative range")}
	}
	size := int64(len(buf))
	if off >= size {
		return nil, &FetchError{Ref: ref, Offset: off, Length: length, Err: io.EOF}
	}
	end := off + length
	if end > size {
		end = size
	}
	out := make([]byte, end-off)
	copy(out, buf[off:end])
	return out, nil
}
