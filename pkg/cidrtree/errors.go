package cidrtree

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCIDR is returned for text that does not parse as a CIDR or
	// carries an out-of-range prefix length.
	ErrInvalidCIDR = errors.New("invalid CIDR")

	// ErrNotFound is returned when a query names a CIDR that is not registered.
	// A registered CIDR with no children is not an error.
	ErrNotFound = errors.New("CIDR not registered")

	// ErrNoSpace is returned when a free-block search exhausts the parent's range.
	ErrNoSpace = errors.New("no space available")

	// ErrInvalidRequest is returned for a free-block request whose prefix length
	// is not more specific than the parent's, or whose family does not match.
	ErrInvalidRequest = errors.New("invalid free-block request")
)

// OverlapError reports two blocks whose ranges intersect without either
// containing the other. The pair cannot be placed in a strict containment
// tree, so the insertion is rejected and the tree is left unchanged.
type OverlapError struct {
	New      string
	Existing string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("CIDR %s partially overlaps registered CIDR %s", e.New, e.Existing)
}
