// Package rtree implements a static R-tree built by Sort-Tile-Recursive
// bulk loading.
//
// All entries are known up front, so the tree is packed level by level:
// entries are sorted by the x-center of their bounds, cut into vertical
// slices of fanout*ceil(sqrt(leaves)) entries, each slice is sorted by
// y-center and chunked into nodes of fanout entries. The same procedure
// packs the nodes of each level into the next until a single root remains.
//
// A built tree is immutable and safe for concurrent searches.
package rtree

import (
	"cmp"
	"math"
	"slices"

	"github.com/paulmach/orb"
)

// DefaultFanout is the number of entries per node.
const DefaultFanout = 128

// Entry pairs a record id with its bounding box.
type Entry struct {
	ID    int
	Bound orb.Bound
}

type node struct {
	bound    orb.Bound
	children []*node // inner nodes
	entries  []Entry // leaves
}

func (n *node) leaf() bool { return n.children == nil }

// Tree is a packed R-tree over record ids.
//
// Records without an envelope (null shapes) are kept beside the tree. They
// can never intersect a box, but they are still reachable: a search whose
// box covers the whole tree returns them too.
type Tree struct {
	root   *node
	fanout int
	size   int
	nulls  []int
}

// Build bulk-loads entries into a tree. nulls lists ids that have no
// envelope. A fanout below 2 uses DefaultFanout. Build reorders entries.
func Build(entries []Entry, nulls []int, fanout int) *Tree {
	if fanout < 2 {
		fanout = DefaultFanout
	}
	t := &Tree{
		fanout: fanout,
		size:   len(entries),
		nulls:  slices.Clone(nulls),
	}
	slices.Sort(t.nulls)

	if len(entries) == 0 {
		t.root = &node{bound: emptyBound(), entries: []Entry{}}
		return t
	}

	groups := pack(entries, fanout, func(e Entry) orb.Bound { return e.Bound })
	level := make([]*node, len(groups))
	for i, g := range groups {
		n := &node{entries: g, bound: g[0].Bound}
		for _, e := range g[1:] {
			n.bound = n.bound.Union(e.Bound)
		}
		level[i] = n
	}

	for len(level) > 1 {
		groups := pack(level, fanout, func(n *node) orb.Bound { return n.bound })
		next := make([]*node, len(groups))
		for i, g := range groups {
			n := &node{children: g, bound: g[0].bound}
			for _, c := range g[1:] {
				n.bound = n.bound.Union(c.bound)
			}
			next[i] = n
		}
		level = next
	}
	t.root = level[0]
	return t
}

// pack groups items into runs of at most fanout using Sort-Tile-Recursive ordering.
func pack[T any](items []T, fanout int, bound func(T) orb.Bound) [][]T {
	leaves := (len(items) + fanout - 1) / fanout
	sliceCount := int(math.Ceil(math.Sqrt(float64(leaves))))
	sliceSize := sliceCount * fanout

	slices.SortFunc(items, func(a, b T) int {
		return cmp.Compare(bound(a).Center()[0], bound(b).Center()[0])
	})

	groups := make([][]T, 0, leaves)
	for s := 0; s < len(items); s += sliceSize {
		slab := items[s:min(s+sliceSize, len(items))]
		slices.SortFunc(slab, func(a, b T) int {
			return cmp.Compare(bound(a).Center()[1], bound(b).Center()[1])
		})
		for g := 0; g < len(slab); g += fanout {
			groups = append(groups, slab[g:min(g+fanout, len(slab)):min(g+fanout, len(slab))])
		}
	}
	return groups
}

func emptyBound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Inf(1), math.Inf(1)},
		Max: orb.Point{math.Inf(-1), math.Inf(-1)},
	}
}

func isEmpty(b orb.Bound) bool {
	return !(b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1])
}

// Len returns the number of entries with an envelope.
func (t *Tree) Len() int { return t.size }

// Nulls returns the ids stored without an envelope.
func (t *Tree) Nulls() []int { return slices.Clone(t.nulls) }

// Fanout returns the maximum number of entries per node.
func (t *Tree) Fanout() int { return t.fanout }

// Bound returns the union of all entry bounds. It is empty when the tree
// holds no entry with an envelope.
func (t *Tree) Bound() orb.Bound { return t.root.bound }

// Depth returns the number of levels, counting the leaf level.
func (t *Tree) Depth() int {
	d := 1
	for n := t.root; !n.leaf(); n = n.children[0] {
		d++
	}
	return d
}

// Search returns the ids whose bounds intersect b, boundaries included,
// in ascending order. Ids without an envelope are included when b covers
// the whole tree. An empty box matches nothing.
func (t *Tree) Search(b orb.Bound) []int {
	if isEmpty(b) {
		return nil
	}
	var ids []int
	if t.size > 0 && t.root.bound.Intersects(b) {
		stack := []*node{t.root}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n.leaf() {
				for _, e := range n.entries {
					if e.Bound.Intersects(b) {
						ids = append(ids, e.ID)
					}
				}
				continue
			}
			for _, c := range n.children {
				if c.bound.Intersects(b) {
					stack = append(stack, c)
				}
			}
		}
	}
	if len(t.nulls) > 0 && (t.size == 0 || covers(b, t.root.bound)) {
		ids = append(ids, t.nulls...)
	}
	slices.Sort(ids)
	return ids
}

// All returns every id in the tree, nulls included, in ascending order.
func (t *Tree) All() []int {
	ids := make([]int, 0, t.size+len(t.nulls))
	t.walk(func(e Entry) { ids = append(ids, e.ID) })
	ids = append(ids, t.nulls...)
	slices.Sort(ids)
	return ids
}

func (t *Tree) walk(fn func(Entry)) {
	stack := []*node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.leaf() {
			for _, e := range n.entries {
				fn(e)
			}
			continue
		}
		stack = append(stack, n.children...)
	}
}

func covers(outer, inner orb.Bound) bool {
	return outer.Min[0] <= inner.Min[0] && outer.Min[1] <= inner.Min[1] &&
		outer.Max[0] >= inner.Max[0] && outer.Max[1] >= inner.Max[1]
}
