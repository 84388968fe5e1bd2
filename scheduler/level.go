package scheduler

import (
	"errors"
	"fmt"

	"github.com/preesm/spider2-sub002/firing"
	"github.com/preesm/spider2-sub002/pisdf"
)

// ErrDeadlock is returned when the dependency walk finds a cycle among task
// levels, meaning no execution order can satisfy every FIFO's producer-before-
// consumer requirement.
var ErrDeadlock = errors.New("scheduler: dependency cycle detected, no valid schedule exists")

// ErrUnresolvedGraph names the condition of a handler whose dynamic
// parameters are not all resolved yet. Flattening does not return it: such
// handlers are skipped, and their tasks appear once parameter feedback (from
// CONFIG actors) has resolved them.
var ErrUnresolvedGraph = errors.New("scheduler: graph handler not resolved")

// builder holds the mutable state of one flatten+level-compute pass.
type builder struct {
	tasks    map[TaskRef]*ListTask
	order    []TaskRef
	levels   map[TaskRef]int64
	visiting map[TaskRef]bool
	bestExec func(*pisdf.Vertex) int64
}

// BuildTaskList flattens the hierarchy rooted at root into a single list of
// executable tasks (GRAPH/INPUT/OUTPUT/DELAY bookkeeping vertices are
// elided; a GraphActor firing contributes its child handler's own tasks
// instead of a task of its own) and computes each task's schedule level.
func BuildTaskList(root *firing.Handler, bestExec func(*pisdf.Vertex) int64) ([]*ListTask, error) {
	if bestExec == nil {
		bestExec = DefaultExecTime
	}
	b := &builder{
		tasks:    make(map[TaskRef]*ListTask),
		levels:   make(map[TaskRef]int64),
		visiting: make(map[TaskRef]bool),
		bestExec: bestExec,
	}
	if err := b.flattenHandler(root); err != nil {
		return nil, err
	}
	for _, k := range b.order {
		if err := b.computePredecessors(b.tasks[k]); err != nil {
			return nil, err
		}
	}
	out := make([]*ListTask, 0, len(b.order))
	for _, k := range b.order {
		t := b.tasks[k]
		lvl, err := b.levelOf(k)
		if err != nil {
			return nil, err
		}
		t.Level = lvl
		out = append(out, t)
	}
	return out, nil
}

// computePredecessors records t's direct producer tasks by walking the
// execution-dependency iterator over each of its sink edges. This is the
// set the mapper and launcher use to enforce producer-before-consumer
// ordering; it is independent of the schedule-level computation below,
// which walks the opposite direction.
func (b *builder) computePredecessors(t *ListTask) error {
	v := t.Handler.Graph.Vertex(t.Vertex)
	for _, edgeIx := range v.InEdges {
		deps, err := t.Handler.CollectExecutionDependencies(edgeIx, t.Firing)
		if err != nil {
			return fmt.Errorf("scheduler: task %s: %w", t.Ref(), err)
		}
		for _, d := range deps {
			if d.TargetVertex == pisdf.NoIndex || d.Unresolved {
				continue
			}
			owner := d.TargetHandler
			if owner == nil {
				owner = t.Handler
			}
			for f := d.FiringStart; f <= d.FiringEnd; f++ {
				depKey := TaskRef{Handler: owner, Vertex: d.TargetVertex, Firing: f}
				if _, ok := b.tasks[depKey]; ok {
					t.Predecessors = append(t.Predecessors, depKey)
				}
			}
		}
	}
	return nil
}

// DefaultExecTime returns the cheapest advertised cycle count across the
// vertex's supported PE types, or 1 if it has no runtime info.
func DefaultExecTime(v *pisdf.Vertex) int64 {
	if v.RtInfo == nil || len(v.RtInfo.PECycles) == 0 {
		return 1
	}
	best := int64(-1)
	for _, c := range v.RtInfo.PECycles {
		if best == -1 || c < best {
			best = c
		}
	}
	if best <= 0 {
		return 1
	}
	return best
}

func (b *builder) flattenHandler(h *firing.Handler) error {
	if err := h.ComputeRepetitionVector(); err != nil {
		return fmt.Errorf("scheduler: sub-graph %q: %w", h.Graph.Name, err)
	}
	for _, v := range h.Graph.Vertices {
		switch v.Subtype {
		case pisdf.Input, pisdf.Output, pisdf.DelayActor:
			continue
		case pisdf.GraphActor:
			// A GraphActor firing whose handler isn't resolved yet (or whose
			// own parent isn't) contributes no tasks this wave; its firings
			// are picked up once parameter feedback resolves it.
			if !h.Resolved() {
				continue
			}
			count := h.RepetitionVector[v.Index]
			for k := int64(0); k < count; k++ {
				child, err := h.ChildHandler(v.Index, k)
				if err != nil {
					return err
				}
				if !child.Resolved() {
					continue
				}
				if err := b.flattenHandler(child); err != nil {
					return err
				}
			}
		default:
			// CONFIG actors are excluded from the repetition vector entirely
			// and always fire once. Every other vertex absent from the
			// repetition vector is not executable yet under the handler's
			// current (possibly partial) parameter values — e.g. its rate
			// expression reads a DYNAMIC parameter still awaiting feedback —
			// and contributes no task until a later wave recomputes the RV.
			count, executable := h.RepetitionVector[v.Index]
			if !executable {
				if v.Subtype != pisdf.Config {
					continue
				}
				count = 1
			}
			for k := int64(0); k < count; k++ {
				key := TaskRef{Handler: h, Vertex: v.Index, Firing: k}
				if _, exists := b.tasks[key]; exists {
					continue
				}
				b.tasks[key] = &ListTask{
					Handler:  h,
					Vertex:   v.Index,
					Firing:   k,
					Type:     VertexTask,
					State:    Pending,
					ExecTime: b.bestExec(v),
					PE:       -1,
					Cluster:  -1,
				}
				b.order = append(b.order, key)
			}
		}
	}
	return nil
}

// levelOf computes (memoized) the schedule level of the task at key: the
// length of the longest path from it to any sink in the consumption-
// dependency DAG, weighted by best-case execution time. A
// task with no consumers has level 0; sorting descending by this level
// gives tasks furthest from the graph's outputs scheduling priority, which
// also happens to respect producer-before-consumer order for the single
// forward pass in Schedule.
func (b *builder) levelOf(key TaskRef) (int64, error) {
	if lvl, ok := b.levels[key]; ok {
		return lvl, nil
	}
	if b.visiting[key] {
		return 0, fmt.Errorf("scheduler: task %s: %w", key, ErrDeadlock)
	}
	b.visiting[key] = true
	defer delete(b.visiting, key)

	t, ok := b.tasks[key]
	if !ok {
		return 0, fmt.Errorf("scheduler: unknown task %s", key)
	}
	v := t.Handler.Graph.Vertex(t.Vertex)

	var level int64
	for _, edgeIx := range v.OutEdges {
		deps, err := t.Handler.CollectConsumptionDependencies(edgeIx, t.Firing)
		if err != nil {
			return 0, fmt.Errorf("scheduler: task %s: %w", key, err)
		}
		for _, d := range deps {
			if d.TargetVertex == pisdf.NoIndex || d.Unresolved {
				continue
			}
			owner := d.TargetHandler
			if owner == nil {
				owner = t.Handler
			}
			for f := d.FiringStart; f <= d.FiringEnd; f++ {
				depKey := TaskRef{Handler: owner, Vertex: d.TargetVertex, Firing: f}
				depTask, ok := b.tasks[depKey]
				if !ok {
					continue
				}
				depLevel, err := b.levelOf(depKey)
				if err != nil {
					return 0, err
				}
				candidate := depLevel + depTask.ExecTime
				if candidate > level {
					level = candidate
				}
			}
		}
	}
	b.levels[key] = level
	return level, nil
}
