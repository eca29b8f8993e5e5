package cidrtree

import (
	"fmt"
	"strings"
)

// Render returns a box-drawing text rendering of the subtree rooted at text,
// one block per line, children in canonical order. Empty text renders the
// whole hierarchy.
func (t *Tree) Render(text string) (string, error) {
	node := t.root
	if text != "" {
		var err error
		node, err = t.FindNode(text)
		if err != nil {
			return "", err
		}
	}

	var b strings.Builder
	if node.IsRoot() {
		kids := node.childList()
		for i, child := range kids {
			renderNode(&b, child, "", i == len(kids)-1)
		}
	} else {
		renderNode(&b, node, "", true)
	}
	return b.String(), nil
}

func renderNode(b *strings.Builder, n *Node, prefix string, last bool) {
	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}

	label := n.CIDR()
	if n.kind != "" && n.kind != KindUnknown {
		label = fmt.Sprintf("%s (%s)", label, n.kind)
	}
	b.WriteString(prefix + connector + label + "\n")

	kids := n.childList()
	for i, child := range kids {
		renderNode(b, child, childPrefix, i == len(kids)-1)
	}
}
