package cidrtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFreeBlockFirstFit(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.BuildFromList(entriesFrom(
		"10.0.0.0/24", "10.0.0.0/26", "10.0.0.64/26",
	)))

	// First gap in ascending order.
	free, err := tree.FindFreeBlock("10.0.0.0/24", 26)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.128/26", free.String())

	// A /25 cannot use the occupied lower half.
	free, err = tree.FindFreeBlock("10.0.0.0/24", 25)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.128/25", free.String())
}

func TestFindFreeBlockSkipsDeepDescendants(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.BuildFromList(entriesFrom(
		"10.0.0.0/16",
		"10.0.0.0/23",   // direct child
		"10.0.1.0/24",   // grandchild inside the /23
		"10.0.2.128/25", // deeper allocation with no intermediate block
	)))

	// The candidate must clear grandchildren too: 10.0.2.0/24 holds a /25.
	free, err := tree.FindFreeBlock("10.0.0.0/16", 24)
	require.NoError(t, err)
	assert.Equal(t, "10.0.3.0/24", free.String())
}

func TestFindFreeBlockInvalidRequests(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.BuildFromList(entriesFrom("10.0.0.0/24")))

	// Not more specific than the parent.
	_, err := tree.FindFreeBlock("10.0.0.0/24", 24)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = tree.FindFreeBlock("10.0.0.0/24", 16)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// Beyond the family's address width.
	_, err = tree.FindFreeBlock("10.0.0.0/24", 33)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// Unregistered parent.
	_, err = tree.FindFreeBlock("172.16.0.0/12", 24)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindFreeBlockNoSpace(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.BuildFromList(entriesFrom(
		"10.0.0.0/30", "10.0.0.0/31", "10.0.0.2/31",
	)))

	_, err := tree.FindFreeBlock("10.0.0.0/30", 31)
	assert.ErrorIs(t, err, ErrNoSpace)

	// A lease blocks the whole candidate it sits in.
	single := NewTree()
	require.NoError(t, single.BuildFromList(entriesFrom("10.0.0.0/24", "10.0.0.1/32")))
	free, err := single.FindFreeBlock("10.0.0.0/24", 25)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.128/25", free.String())
}

func TestFindFreeBlockIPv6(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.BuildFromList(entriesFrom(
		"2001:db8::/32", "2001:db8::/48",
	)))

	free, err := tree.FindFreeBlock("2001:db8::/32", 48)
	require.NoError(t, err)
	assert.Equal(t, "2001:db8:1::/48", free.String())

	// Every /64 inside the registered /48 collides; the first fit lands just
	// past it.
	free, err = tree.FindFreeBlock("2001:db8::/32", 64)
	require.NoError(t, err)
	assert.Equal(t, "2001:db8:1::/64", free.String())
}

func TestFindFreeBlockFullWidthLease(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.BuildFromList(entriesFrom("192.168.0.0/30")))

	free, err := tree.FindFreeBlock("192.168.0.0/30", 32)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.0/32", free.String())

	_, err = tree.Insert(free, KindEIP, nil)
	require.NoError(t, err)

	free, err = tree.FindFreeBlock("192.168.0.0/30", 32)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.1/32", free.String())
}
