package resolver

import "fmt"

// PageRangeError is a caller error: the requested page number does not
// exist in the document. Never retried.
type PageRangeError struct {
	Page  int
	Count int
}

func (e *PageRangeError) Error() string {
	return fmt.Sprintf("page %d out of range (document has %d pages)", e.Page, e.Count)
}

// ResolutionError wraps the decode or fetch failure for a single page.
// Local to that page; sibling pages are unaffected.
type ResolutionError struct {
	Page int
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("page %d resolution failed: %v", e.Page, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
