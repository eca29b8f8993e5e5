package cidrtree

import (
	"fmt"
	"net/netip"
	"sort"
)

// Node wraps one AddressBlock with its place in the hierarchy. The parent
// pointer is a non-owning back-reference; ownership flows root to children
// through the children map. The root node is synthetic: it represents all
// address space and holds no block.
type Node struct {
	block    AddressBlock
	kind     Kind
	tags     map[string]struct{}
	parent   *Node
	children map[string]*Node
}

func newNode(block AddressBlock, kind Kind, tags []string) *Node {
	n := &Node{
		block:    block,
		kind:     kind,
		tags:     make(map[string]struct{}, len(tags)),
		children: make(map[string]*Node),
	}
	for _, tag := range tags {
		n.tags[tag] = struct{}{}
	}
	return n
}

// Block returns the node's address block. Invalid for the root.
func (n *Node) Block() AddressBlock { return n.block }

// CIDR returns the canonical CIDR text, or "" for the root.
func (n *Node) CIDR() string {
	if n.IsRoot() {
		return ""
	}
	return n.block.String()
}

// Kind returns the node's kind.
func (n *Node) Kind() Kind { return n.kind }

// Parent returns the immediate parent, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// IsRoot reports whether the node is the synthetic root.
func (n *Node) IsRoot() bool { return !n.block.IsValid() }

// Tags returns the node's tags as a sorted slice.
func (n *Node) Tags() []string {
	tags := make([]string, 0, len(n.tags))
	for tag := range n.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// HasTag reports whether the node carries tag.
func (n *Node) HasTag(tag string) bool {
	_, ok := n.tags[tag]
	return ok
}

func (n *Node) addTags(tags []string) {
	for _, tag := range tags {
		n.tags[tag] = struct{}{}
	}
}

// childList returns the immediate children in canonical order.
func (n *Node) childList() []*Node {
	kids := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		kids = append(kids, c)
	}
	sort.Slice(kids, func(i, j int) bool { return kids[i].block.Less(kids[j].block) })
	return kids
}

// descendants returns every node below n, at any depth, in no particular order.
func (n *Node) descendants() []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(m *Node) {
		for _, c := range m.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}

// Entry is one block of a batch build.
type Entry struct {
	Block AddressBlock
	Kind  Kind
	Tags  []string
}

// Tree reconstructs the strict containment hierarchy over a set of address
// blocks. The index is the single source of truth for existence and
// uniqueness; tree edges are derived from containment among indexed blocks.
//
// The tree itself is not goroutine safe. Callers exposing it to concurrent
// readers and writers must hold a reader/writer lock around every operation,
// since an insert can re-parent an existing subtree.
type Tree struct {
	root  *Node
	index map[string]*Node
}

// NewTree returns an empty hierarchy.
func NewTree() *Tree {
	return &Tree{
		root:  &Node{children: make(map[string]*Node)},
		index: make(map[string]*Node),
	}
}

// Len returns the number of registered blocks.
func (t *Tree) Len() int { return len(t.index) }

// Insert places block in the hierarchy, re-parenting any existing blocks the
// new one encloses. Inserting an already registered block is idempotent: the
// existing node absorbs the new tags, and a known kind overrides KindUnknown.
// A partial overlap with a registered block fails with *OverlapError and
// leaves the tree unchanged. The final tree shape does not depend on
// insertion order.
func (t *Tree) Insert(block AddressBlock, kind Kind, tags []string) (*Node, error) {
	if !block.IsValid() {
		return nil, ErrInvalidCIDR
	}
	key := block.String()
	if existing, ok := t.index[key]; ok {
		existing.addTags(tags)
		if kind != KindUnknown {
			existing.kind = kind
		}
		return existing, nil
	}

	// Descend to the narrowest registered block containing the new one.
	// Nothing is mutated until the descent completes, so an overlap error
	// leaves the tree in its prior state.
	cur := t.root
descend:
	for {
		for _, child := range cur.children {
			if child.block.OverlapsPartially(block) {
				return nil, &OverlapError{New: key, Existing: child.CIDR()}
			}
			if child.block.Contains(block) {
				cur = child
				continue descend
			}
		}
		break
	}

	node := newNode(block, kind, tags)

	// Children of cur that the new block encloses become its children: they
	// were direct children only because no intermediate block existed yet.
	for k, child := range cur.children {
		if block.Contains(child.block) {
			delete(cur.children, k)
			child.parent = node
			node.children[k] = child
		}
	}

	node.parent = cur
	cur.children[key] = node
	t.index[key] = node
	return node, nil
}

// BuildFromList replaces the tree's contents with a batch of blocks. The
// batch is sorted broadest-first before insertion, so each block needs at
// most one re-parenting pass. The new hierarchy is staged on the side and
// swapped in only when the whole batch inserts cleanly; on error the
// receiver keeps its prior contents.
func (t *Tree) BuildFromList(entries []Entry) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Block.Less(sorted[j].Block) })

	staged := NewTree()
	for _, e := range sorted {
		if _, err := staged.Insert(e.Block, e.Kind, e.Tags); err != nil {
			return err
		}
	}

	t.root = staged.root
	t.index = staged.index
	return nil
}

// Remove deletes the named block and re-parents its children to its own
// parent. Fails with ErrNotFound when the block is not registered.
func (t *Tree) Remove(text string) error {
	node, err := t.FindNode(text)
	if err != nil {
		return err
	}
	parent := node.parent
	delete(parent.children, node.CIDR())
	for k, child := range node.children {
		child.parent = parent
		parent.children[k] = child
	}
	delete(t.index, node.CIDR())
	return nil
}

// FindNode returns the node for the given CIDR text. The text is normalized
// through Parse first, so equivalent notations match the same node.
func (t *Tree) FindNode(text string) (*Node, error) {
	block, err := Parse(text)
	if err != nil {
		return nil, err
	}
	node, ok := t.index[block.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, block)
	}
	return node, nil
}

// ChildrenOf returns only the immediate children of text, in canonical order.
// Empty text returns the top-level blocks. A registered block with no
// children yields an empty slice; an unregistered block fails with
// ErrNotFound.
func (t *Tree) ChildrenOf(text string) ([]string, error) {
	node := t.root
	if text != "" {
		var err error
		node, err = t.FindNode(text)
		if err != nil {
			return nil, err
		}
	}
	kids := node.childList()
	out := make([]string, 0, len(kids))
	for _, c := range kids {
		out = append(out, c.CIDR())
	}
	return out, nil
}

// AncestorsOf returns the registered ancestors of text ordered from the
// outermost block down to the immediate parent. The synthetic root is
// omitted; a top-level block has no ancestors.
func (t *Tree) AncestorsOf(text string) ([]string, error) {
	node, err := t.FindNode(text)
	if err != nil {
		return nil, err
	}
	chain := []string{}
	for p := node.parent; p != nil && !p.IsRoot(); p = p.parent {
		chain = append(chain, p.CIDR())
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// LookupIP returns the most specific registered block containing the given
// address. Fails with ErrInvalidCIDR for unparsable text and ErrNotFound when
// no registered block contains the address.
func (t *Tree) LookupIP(text string) (*Node, error) {
	addr, err := netip.ParseAddr(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCIDR, text)
	}
	bits := 128
	if addr.Is4() {
		bits = 32
	}
	probe := blockFromPrefix(netip.PrefixFrom(addr, bits))

	var best *Node
	cur := t.root
	for {
		descended := false
		for _, child := range cur.children {
			if child.block.Contains(probe) {
				best = child
				cur = child
				descended = true
				break
			}
		}
		if !descended {
			break
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no block contains %s", ErrNotFound, addr)
	}
	return best, nil
}

// All returns every registered node in canonical order.
func (t *Tree) All() []*Node {
	nodes := make([]*Node, 0, len(t.index))
	for _, n := range t.index {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].block.Less(nodes[j].block) })
	return nodes
}
