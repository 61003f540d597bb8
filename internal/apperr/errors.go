// Package apperr defines the failure kinds a note can end up in.
package apperr

import "errors"

var (
	ErrRead      = errors.New("read failed")
	ErrDecode    = errors.New("decode failed")
	ErrTooLarge  = errors.New("file too large")
	ErrPersist   = errors.New("persist failed")
	ErrTraversal = errors.New("directory not found")
	ErrInference = errors.New("inference unavailable")
	ErrLocked    = errors.New("vault is locked by another process")

	ErrNotFound    = errors.New("not found")
	ErrInvalidPath = errors.New("invalid path")
)

// Kind classifies a processing failure.
type Kind string

const (
	KindNone      Kind = ""
	KindRead      Kind = "read"
	KindDecode    Kind = "decode"
	KindTooLarge  Kind = "too_large"
	KindPersist   Kind = "persist"
	KindTraversal Kind = "traversal"
	KindInference Kind = "inference"
	KindInternal  Kind = "internal"
)

// KindOf maps err onto its Kind. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrRead):
		return KindRead
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, ErrPersist):
		return KindPersist
	case errors.Is(err, ErrTraversal):
		return KindTraversal
	case errors.Is(err, ErrInference):
		return KindInference
	default:
		return KindInternal
	}
}
