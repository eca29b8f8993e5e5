// Package cidrtree reconstructs the strict containment hierarchy over an
// unordered collection of IPv4/IPv6 CIDR blocks and answers containment,
// child-listing and free-space queries over it.
//
// Each registered block becomes one node; a node's parent is always the
// narrowest registered block that strictly contains it, and blocks with no
// registered container hang off a synthetic root. Inserting a broader block
// later re-parents the existing blocks it encloses, so batch construction and
// incremental insertion converge on the same tree regardless of order.
//
// Example:
//
//	tree := cidrtree.NewTree()
//	tree.Insert(cidrtree.MustParse("10.0.0.0/8"), cidrtree.KindStatic, nil)
//	tree.Insert(cidrtree.MustParse("10.1.0.0/16"), cidrtree.KindVPC, []string{"env=prod"})
//
//	children, _ := tree.ChildrenOf("10.0.0.0/8") // ["10.1.0.0/16"]
//	free, _ := tree.FindFreeBlock("10.0.0.0/8", 16)
//	fmt.Println(free) // 10.0.0.0/16
//
// The two address families never mix: an IPv6 block cannot contain, shadow or
// collide with an IPv4 block. The tree performs no locking of its own.
package cidrtree
