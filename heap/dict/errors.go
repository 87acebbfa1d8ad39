package dict

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/freetree/heap/region"
)

var (
	// ErrSizeTooSmall indicates a chunk or region smaller than MinSize words.
	ErrSizeTooSmall = errors.New("dict: chunk smaller than minimum tree chunk")

	// ErrOutOfRegion indicates a chunk that does not lie inside the dictionary's region.
	ErrOutOfRegion = errors.New("dict: chunk outside region")

	// ErrRegionTooLarge indicates a region whose offsets do not fit in a link field.
	ErrRegionTooLarge = region.ErrTooLarge

	// ErrNotFree indicates a chunk whose header is not marked free.
	ErrNotFree = errors.New("dict: expected free chunk")

	// ErrAlreadyFree indicates an insert of a chunk that is already on a free list.
	ErrAlreadyFree = errors.New("dict: chunk already in free lists")

	// ErrNotInDictionary indicates removal of a chunk that is not on any free list.
	ErrNotInDictionary = errors.New("dict: chunk not in free lists")

	// ErrInvariantViolation marks structural corruption of the tree or its lists.
	ErrInvariantViolation = errors.New("dict: invariant violation")
)

// violation builds an error marked with ErrInvariantViolation.
func violation(format string, args ...any) error {
	return errors.Wrapf(ErrInvariantViolation, format, args...)
}
