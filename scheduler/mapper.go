package scheduler

import (
	"errors"
	"fmt"

	"github.com/preesm/spider2-sub002/platform"
)

// ErrNoMappablePE is returned when no enabled PE in the platform supports a
// task's vertex subtype/kernel.
var ErrNoMappablePE = errors.New("scheduler: no PE can execute this task")

// MappingPolicy assigns a ready task to a PE and cluster, returning the
// cycle at which it may start (given both PE availability and the data
// dependencies already mapped).
type MappingPolicy interface {
	Map(t *ListTask, s *state) (peIx, clusterIx int, start int64, err error)
}

// state is the mapper's live view of the platform timeline, threaded
// through the scheduling loop.
type state struct {
	plat *platform.Platform
	// peFree[v] is the cycle at which PE with virtual index v becomes free.
	peFree map[int]int64
	// clusterEnd[c] is the cycle at which the last task mapped to cluster c
	// finishes; it is recorded by commit and not read by either policy.
	clusterEnd map[int]int64
	// taskEnd[TaskRef] records completion cycles so dependents can compute
	// their minimum start time.
	taskEnd map[TaskRef]int64
	// taskCluster records which cluster produced each task's output, for
	// the cross-cluster transfer-cost estimate.
	taskCluster map[TaskRef]int
}

func newState(p *platform.Platform) *state {
	s := &state{
		plat:        p,
		peFree:      make(map[int]int64),
		clusterEnd:  make(map[int]int64),
		taskEnd:     make(map[TaskRef]int64),
		taskCluster: make(map[TaskRef]int),
	}
	for _, c := range p.Clusters {
		for _, pe := range c.PEs {
			s.peFree[pe.VirtualIndex] = 0
		}
	}
	return s
}

func (s *state) minStartTime(t *ListTask) int64 {
	var min int64
	for _, dep := range t.Predecessors {
		if end, ok := s.taskEnd[dep]; ok && end > min {
			min = end
		}
	}
	return min
}

func (s *state) transferCost(t *ListTask, dstCluster int) int64 {
	var cost int64
	for _, dep := range t.Predecessors {
		srcCluster, ok := s.taskCluster[dep]
		if !ok || srcCluster == dstCluster {
			continue
		}
		bus, ok := s.plat.Bus(srcCluster, dstCluster)
		if !ok || bus.ReadSpeed <= 0 {
			continue
		}
		// A conservative per-dependency fixed-size estimate; the allocator
		// computes the real byte count once FIFOs are sized.
		cost += int64(1.0 / bus.ReadSpeed)
	}
	return cost
}

func (s *state) commit(t *ListTask, peIx, clusterIx int, start int64) {
	end := start + t.ExecTime
	t.PE = peIx
	t.Cluster = clusterIx
	t.StartCycle = start
	t.EndCycle = end
	s.peFree[peIx] = end
	if end > s.clusterEnd[clusterIx] {
		s.clusterEnd[clusterIx] = end
	}
	s.taskEnd[t.Ref()] = end
	s.taskCluster[t.Ref()] = clusterIx
}

// BestFit picks, per cluster, the PE minimizing max(ready_time,
// min_start_time) + exec_time, breaking ties in favor of the PE with the
// smaller resulting idle gap before it; it then picks the cluster
// minimizing that per-cluster completion time plus the estimated
// cross-cluster data-transfer cost of the task's predecessors already mapped
// to another cluster. On equal totals the earlier cluster is kept.
type BestFit struct{}

func (BestFit) Map(t *ListTask, s *state) (int, int, int64, error) {
	minStart := s.minStartTime(t)

	type candidate struct {
		pe, cluster int
		start, end  int64
		idleGap     int64
	}
	var best *candidate
	for _, c := range s.plat.Clusters {
		var clusterBest *candidate
		for _, pe := range c.PEs {
			if !pe.Enabled || !supports(t, pe) {
				continue
			}
			ready := s.peFree[pe.VirtualIndex]
			start := ready
			if minStart > start {
				start = minStart
			}
			end := start + t.ExecTime
			gap := start - ready
			cand := &candidate{pe: pe.VirtualIndex, cluster: c.Index, start: start, end: end, idleGap: gap}
			if clusterBest == nil || end < clusterBest.end ||
				(end == clusterBest.end && gap < clusterBest.idleGap) {
				clusterBest = cand
			}
		}
		if clusterBest == nil {
			continue
		}
		total := clusterBest.end + s.transferCost(t, clusterBest.cluster)
		if best == nil || total < best.end+s.transferCost(t, best.cluster) {
			best = clusterBest
		}
	}
	if best == nil {
		return 0, 0, 0, fmt.Errorf("task on vertex %q: %w", t.Handler.Graph.Vertex(t.Vertex).Name, ErrNoMappablePE)
	}
	return best.pe, best.cluster, best.start, nil
}

// RoundRobin cycles through enabled PEs supporting the task's vertex in a
// fixed order, regardless of load, skipping disabled ones.
type RoundRobin struct {
	order []int // PE virtual indices, fixed order
	next  int
}

// NewRoundRobin builds a RoundRobin policy over every enabled PE in the
// platform, ordered by cluster index then PE virtual index.
func NewRoundRobin(p *platform.Platform) *RoundRobin {
	rr := &RoundRobin{}
	for _, c := range p.Clusters {
		for _, pe := range c.PEs {
			if pe.Enabled {
				rr.order = append(rr.order, pe.VirtualIndex)
			}
		}
	}
	return rr
}

func (rr *RoundRobin) Map(t *ListTask, s *state) (int, int, int64, error) {
	if len(rr.order) == 0 {
		return 0, 0, 0, fmt.Errorf("task on vertex %q: %w", t.Handler.Graph.Vertex(t.Vertex).Name, ErrNoMappablePE)
	}
	minStart := s.minStartTime(t)
	for i := 0; i < len(rr.order); i++ {
		peIx := rr.order[(rr.next+i)%len(rr.order)]
		pe, cluster, ok := findPE(s.plat, peIx)
		if !ok || !supports(t, pe) {
			continue
		}
		rr.next = (rr.next + i + 1) % len(rr.order)
		ready := s.peFree[peIx]
		start := ready
		if minStart > start {
			start = minStart
		}
		return peIx, cluster, start, nil
	}
	return 0, 0, 0, fmt.Errorf("task on vertex %q: %w", t.Handler.Graph.Vertex(t.Vertex).Name, ErrNoMappablePE)
}

func findPE(p *platform.Platform, virtualIx int) (platform.PE, int, bool) {
	for _, c := range p.Clusters {
		for _, pe := range c.PEs {
			if pe.VirtualIndex == virtualIx {
				return pe, c.Index, true
			}
		}
	}
	return platform.PE{}, 0, false
}

// supports reports whether pe's type appears in the task vertex's runtime
// info; a vertex with no runtime info is assumed portable to any PE.
func supports(t *ListTask, pe platform.PE) bool {
	v := t.Handler.Graph.Vertex(t.Vertex)
	if v.RtInfo == nil || len(v.RtInfo.PETypes) == 0 {
		return true
	}
	return v.RtInfo.SupportsPEType(int(pe.Type))
}
