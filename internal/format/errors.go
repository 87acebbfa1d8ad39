package format

import "github.com/cockroachdb/errors"

var (
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrZeroSize indicates a chunk header declared a size of zero words.
	ErrZeroSize = errors.New("format: zero chunk size")
)
