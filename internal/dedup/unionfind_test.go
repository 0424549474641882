package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnionFindGroups(t *testing.T) {
	uf := newUnionFind(6)
	uf.union(0, 3)
	uf.union(3, 5)
	uf.union(1, 4)

	groups := uf.groups()
	assert.Equal(t, [][]int{{0, 3, 5}, {1, 4}, {2}}, groups)
}

func TestUnionFindTransitive(t *testing.T) {
	uf := newUnionFind(3)
	uf.union(0, 1)
	uf.union(1, 2)

	assert.Equal(t, uf.find(0), uf.find(2))
	assert.Len(t, uf.groups(), 1)
}

func TestUnionFindIdempotentUnion(t *testing.T) {
	uf := newUnionFind(2)
	uf.union(0, 1)
	uf.union(1, 0)
	uf.union(0, 1)

	assert.Len(t, uf.groups(), 1)
}
