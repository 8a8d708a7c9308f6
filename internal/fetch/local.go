package fetch

import (
	"context"
	"io"
	"os"
	"sync"
)

// localFetcher serves ranges straight from the filesystem. Ranges are
// always supported; Probe just opens and stats the file once.
type localFetcher struct {
	path string

	mu     sync.Mutex
	f      *os.File
	size   int64
	probed bool
}

func newLocalFetcher(path string) *localFetcher {
	return &localFetcher{path: path}
}

func (l *localFetcher) Probe(ctx context.Context) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.probed {
		return l.size, true, nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		return 0, false, &ProbeError{Ref: "file://" + l.path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, false, &ProbeError{Ref: "file://" + l.path, Err: err}
	}
	l.f = f
	l.size = st.Size()
	l.probed = true
	return l.size, true, nil
}

func (l *localFetcher) FetchRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if _, _, err := l.Probe(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	f, size := l.f, l.size
	l.mu.Unlock()

	if offset >= size {
		return nil, &FetchError{Ref: "file://" + l.path, Offset: offset, Length: length, Err: io.EOF}
	}
	if offset+length > size {
		length = size - offset
	}
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return buf[:n], &FetchError{Ref: "file://" + l.path, Offset: offset, Length: length, Err: err}
	}
	return buf[:n], nil
}

func (l *localFetcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		err := l.f.Close()
		l.f = nil
		return err
	}
	return nil
}

// memoryFetcher serves ranges from an in-memory buffer.
type memoryFetcher struct {
	ref  string
	data []byte
}

func newMemoryFetcher(ref string, data []byte) *memoryFetcher {
	return &memoryFetcher{ref: ref, data: data}
}

func (m *memoryFetcher) Probe(ctx context.Context) (int64, bool, error) {
	return int64(len(m.data)), true, nil
}

func (m *memoryFetcher) FetchRange(ctx context.Context, offset, length int64) ([]byte, error) {
	return sliceRange(m.ref, m.data, offset, length)
}

func (m *memoryFetcher) Close() error { return nil }
