package dedup

// unionFind is an index-based disjoint-set over a candidate slice. Nodes are
// slice positions, so merge groups can be rebuilt cheaply and deterministically.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

// find returns the root of i's set with path compression.
func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

// union merges the sets containing a and b.
func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

// groups returns the connected components as sorted index slices, ordered by
// their smallest member so output is stable across runs.
func (uf *unionFind) groups() [][]int {
	members := make(map[int][]int)
	var order []int
	for i := range uf.parent {
		root := uf.find(i)
		if _, seen := members[root]; !seen {
			order = append(order, root)
		}
		members[root] = append(members[root], i)
	}

	out := make([][]int, 0, len(order))
	for _, root := range order {
		out = append(out, members[root])
	}
	return out
}
