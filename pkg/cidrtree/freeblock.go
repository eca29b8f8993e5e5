package cidrtree

import (
	"fmt"
	"net/netip"
)

// FindFreeBlock returns the first block of the requested prefix length inside
// parent that does not intersect any registered descendant of parent, at any
// depth. Candidates are enumerated in ascending address order and the first
// non-colliding one wins: this is a deliberate greedy first-fit policy, not
// an optimal-packing allocator.
//
// Fails with ErrInvalidRequest when the requested prefix length is not more
// specific than the parent's own, or exceeds the family's address width, and
// with ErrNoSpace when every candidate collides.
func (t *Tree) FindFreeBlock(parentText string, prefixLen int) (AddressBlock, error) {
	parent, err := t.FindNode(parentText)
	if err != nil {
		return AddressBlock{}, err
	}

	pb := parent.block
	maxBits := 128
	if pb.Is4() {
		maxBits = 32
	}
	if prefixLen <= pb.Bits() || prefixLen > maxBits {
		return AddressBlock{}, fmt.Errorf("%w: /%d does not fit inside %s", ErrInvalidRequest, prefixLen, pb)
	}

	taken := parent.descendants()

	cur := pb.first
	for cur.IsValid() {
		cand := blockFromPrefix(netip.PrefixFrom(cur, prefixLen).Masked())
		if cand.last.Compare(pb.last) > 0 {
			break
		}
		collides := false
		for _, d := range taken {
			if rangesIntersect(cand, d.block) {
				collides = true
				break
			}
		}
		if !collides {
			return cand, nil
		}
		cur = cand.last.Next()
	}

	return AddressBlock{}, fmt.Errorf("%w: no free /%d under %s", ErrNoSpace, prefixLen, pb)
}
