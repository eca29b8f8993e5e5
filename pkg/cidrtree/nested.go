package cidrtree

// NestedNode is the tree-shaped export of a node: its CIDR text, tags and
// kind plus the same shape for each immediate child. Derived range bounds are
// omitted; re-walking the structure reproduces exactly the {cidr, tags, kind}
// triples of a direct traversal.
type NestedNode struct {
	CIDR     string       `json:"cidr,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	Kind     Kind         `json:"kind,omitempty"`
	Children []NestedNode `json:"children"`
}

// Walk applies fn to the node and every descendant, top down.
func (n NestedNode) Walk(fn func(NestedNode)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Nested serializes the subtree rooted at text, or the whole hierarchy when
// text is empty. A whole-hierarchy dump is rooted at a synthetic node with an
// empty CIDR whose children are the top-level blocks.
func (t *Tree) Nested(text string) (NestedNode, error) {
	node := t.root
	if text != "" {
		var err error
		node, err = t.FindNode(text)
		if err != nil {
			return NestedNode{}, err
		}
	}
	return nestedFrom(node), nil
}

func nestedFrom(n *Node) NestedNode {
	rep := NestedNode{Children: []NestedNode{}}
	if !n.IsRoot() {
		rep.CIDR = n.CIDR()
		rep.Tags = n.Tags()
		rep.Kind = n.kind
	}
	for _, c := range n.childList() {
		rep.Children = append(rep.Children, nestedFrom(c))
	}
	return rep
}
