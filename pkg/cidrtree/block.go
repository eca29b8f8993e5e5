package cidrtree

import (
	"fmt"
	"net/netip"
)

// Kind classifies how a block entered the hierarchy.
type Kind string

const (
	KindStatic  Kind = "STATIC"  // statically allocated range from a file
	KindVPC     Kind = "VPC"     // VPC allocation discovered from a cloud provider
	KindSubnet  Kind = "SUBNET"  // subnet allocation discovered from a cloud provider
	KindEIP     Kind = "EIP"     // single-address lease (/32 or /128)
	KindUnknown Kind = "UNKNOWN"
)

// ParseKind maps kind text to a Kind, defaulting to KindUnknown.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindStatic, KindVPC, KindSubnet, KindEIP:
		return Kind(s)
	}
	return KindUnknown
}

// AddressBlock is one CIDR: a masked prefix plus its cached inclusive range
// bounds. Immutable after creation; all containment and overlap tests run on
// the cached bounds.
type AddressBlock struct {
	prefix netip.Prefix
	first  netip.Addr
	last   netip.Addr
}

// Parse parses standard CIDR text for either address family. Stray host bits
// are masked away ("10.0.0.5/24" becomes "10.0.0.0/24"), matching
// net.ParseCIDR's tolerance for conventional notation. Malformed text and
// out-of-range prefix lengths fail with ErrInvalidCIDR.
func Parse(text string) (AddressBlock, error) {
	p, err := netip.ParsePrefix(text)
	if err != nil {
		return AddressBlock{}, fmt.Errorf("%w: %q", ErrInvalidCIDR, text)
	}
	return blockFromPrefix(p.Masked()), nil
}

// MustParse is Parse for tests and fixtures; it panics on bad input.
func MustParse(text string) AddressBlock {
	b, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return b
}

func blockFromPrefix(p netip.Prefix) AddressBlock {
	return AddressBlock{prefix: p, first: p.Addr(), last: lastAddr(p)}
}

// lastAddr returns the highest address inside p.
func lastAddr(p netip.Prefix) netip.Addr {
	if p.Addr().Is4() {
		a := p.Addr().As4()
		for b := p.Bits(); b < 32; b++ {
			a[b/8] |= 1 << (7 - b%8)
		}
		return netip.AddrFrom4(a)
	}
	a := p.Addr().As16()
	for b := p.Bits(); b < 128; b++ {
		a[b/8] |= 1 << (7 - b%8)
	}
	return netip.AddrFrom16(a)
}

// Prefix returns the masked prefix.
func (b AddressBlock) Prefix() netip.Prefix { return b.prefix }

// Bits returns the prefix length.
func (b AddressBlock) Bits() int { return b.prefix.Bits() }

// Is4 reports whether the block is IPv4.
func (b AddressBlock) Is4() bool { return b.first.Is4() }

// First returns the lowest address in the block.
func (b AddressBlock) First() netip.Addr { return b.first }

// Last returns the highest address in the block.
func (b AddressBlock) Last() netip.Addr { return b.last }

// IsValid reports whether the block holds a parsed prefix.
func (b AddressBlock) IsValid() bool { return b.prefix.IsValid() }

// String returns the canonical CIDR text.
func (b AddressBlock) String() string { return b.prefix.String() }

// Contains reports whether other's range is a subset of b's range. A block
// contains itself. Blocks of different families never contain each other.
func (b AddressBlock) Contains(other AddressBlock) bool {
	if b.Is4() != other.Is4() {
		return false
	}
	return b.first.Compare(other.first) <= 0 && b.last.Compare(other.last) >= 0
}

// OverlapsPartially reports whether the two ranges intersect while neither
// contains the other. Such a pair is not representable in a strict
// containment tree and must be surfaced as an OverlapError.
func (b AddressBlock) OverlapsPartially(other AddressBlock) bool {
	if !rangesIntersect(b, other) {
		return false
	}
	return !b.Contains(other) && !other.Contains(b)
}

// rangesIntersect reports whether the two blocks share any address.
func rangesIntersect(a, b AddressBlock) bool {
	if a.Is4() != b.Is4() {
		return false
	}
	return a.first.Compare(b.last) <= 0 && b.first.Compare(a.last) <= 0
}

// Less orders blocks broadest-first (ascending prefix length), then by
// ascending first address. This is the canonical construction and display
// order: processing a batch in this order guarantees a parent is always
// placed before its children.
func (b AddressBlock) Less(other AddressBlock) bool {
	if b.prefix.Bits() != other.prefix.Bits() {
		return b.prefix.Bits() < other.prefix.Bits()
	}
	return b.first.Compare(other.first) < 0
}
