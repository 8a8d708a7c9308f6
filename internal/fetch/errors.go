package fetch

import "fmt"

// ProbeError means the source could not be reached or sized at all. Fatal
// to document open.
type ProbeError struct {
	Ref string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("source unavailable: %s: %v", e.Ref, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// FetchError wraps a failed byte-range acquisition.
type FetchError struct {
	Ref    string
	Offset int64
	Length int64
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed: %s [%d,+%d): %v", e.Ref, e.Offset, e.Length, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPStatusError reports an unexpected HTTP status from the origin.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}
