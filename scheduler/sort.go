package scheduler

import (
	"sort"

	"github.com/preesm/spider2-sub002/pisdf"
)

// SortDescendingLevel orders tasks by descending schedule level, breaking
// ties with a deterministic chain: shared parent-firing lineage groups
// first (shallower nesting first), INIT before END within a persistent
// delay pair, then vertex name descending lexicographically.
func SortDescendingLevel(tasks []*ListTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Level != b.Level {
			return a.Level > b.Level
		}
		da, db := lineageDepth(a), lineageDepth(b)
		if da != db {
			return da < db
		}
		ia, ib := initRank(a), initRank(b)
		if ia != ib {
			return ia < ib
		}
		na, nb := vertexName(a), vertexName(b)
		if na != nb {
			return na > nb
		}
		return a.Firing < b.Firing
	})
}

func lineageDepth(t *ListTask) int {
	depth := 0
	for h := t.Handler; h.Parent != nil; h = h.Parent {
		depth++
	}
	return depth
}

// initRank orders INIT-bracket actors before ordinary actors before
// END-bracket actors, so a persistent delay's setter always schedules
// before its getter within the same level/lineage group.
func initRank(t *ListTask) int {
	v := t.Handler.Graph.Vertex(t.Vertex)
	switch v.Subtype {
	case pisdf.Init:
		return 0
	case pisdf.Config:
		return 1
	case pisdf.End:
		return 3
	default:
		return 2
	}
}

func vertexName(t *ListTask) string {
	return t.Handler.Graph.Vertex(t.Vertex).Name
}
