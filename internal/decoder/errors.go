package decoder

import (
	"errors"
	"fmt"
)

var (
	// ErrPasswordRequired means the document is encrypted and no usable
	// credentials were supplied. The caller may retry open with a prompt.
	ErrPasswordRequired = errors.New("decoder: password required")

	// ErrInvalidPassword means the supplied credentials were rejected.
	ErrInvalidPassword = errors.New("decoder: invalid password")

	// ErrClosed is returned for any call made after or during Close.
	ErrClosed = errors.New("decoder: document closed")
)

// CorruptError reports a structural parse failure; fatal to open.
type CorruptError struct {
	Ref string
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt document: %s: %v", e.Ref, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }
