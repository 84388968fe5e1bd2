package firing

import (
	"errors"
	"fmt"

	"github.com/preesm/spider2-sub002/core/numeric"
	"github.com/preesm/spider2-sub002/pisdf"
)

// ErrUnresolvedDependency marks a dependency whose producer lives under a
// handler that has not yet resolved its dynamic parameters; the caller
// cannot know the final firing count yet.
var ErrUnresolvedDependency = errors.New("firing: dependency source unresolved")

// Dependency is one entry of the lazy execution-/consumption-dependency
// sequence: a contiguous run of producer (or consumer) firings covering part
// of the byte range being queried.
type Dependency struct {
	TargetVertex  int // pisdf.NoIndex for a rate-0 null dependency
	TargetHandler *Handler
	SourcePort    int

	MemStart int64
	MemEnd   int64

	FiringStart int64
	FiringEnd   int64

	Unresolved bool
}

// Sink receives Dependency values as the iterator produces them. The
// iterators do not consult the returned bool: every dependency is delivered.
// The iterator allocates nothing beyond what the sink itself requests.
type Sink func(Dependency) bool

// ExecutionDependencies is the producer-side query: for the firing-th firing
// of the sink vertex owning edgeIx's sink port, it yields the ordered set of
// producer dependencies covering the consumption interval
// [firing*snkRate, (firing+1)*snkRate - 1].
func (h *Handler) ExecutionDependencies(edgeIx int, firing int64, yield Sink) error {
	e := h.Graph.Edge(edgeIx)
	if e == nil {
		return fmt.Errorf("firing: edge %d not found", edgeIx)
	}
	snkRate, err := h.GetRate(e, false)
	if err != nil {
		return err
	}
	if snkRate == 0 {
		yield(Dependency{TargetVertex: pisdf.NoIndex})
		return nil
	}

	var delay int64
	if e.Delay != nil {
		delay, err = h.evalDelay(e)
		if err != nil {
			return err
		}
	}

	lower := firing*snkRate - delay
	upper := (firing+1)*snkRate - 1 - delay

	switch {
	case upper < 0:
		// Pure setter: the whole window lies in [0, delay), i.e. it reads
		// bytes the setter wrote before this producer stream started.
		return h.executionDepsThroughSetter(e, lower, upper, yield)
	case lower >= 0:
		// Pure source.
		return h.resolveFromSource(e, lower, upper, yield)
	default:
		// Mixed: split at 0.
		if err := h.executionDepsThroughSetter(e, lower, -1, yield); err != nil {
			return err
		}
		return h.resolveFromSource(e, 0, upper, yield)
	}
}

func (h *Handler) evalDelay(e *pisdf.Edge) (int64, error) {
	v, err := e.Delay.ValueExpr.Eval(h.values)
	if err != nil {
		return 0, fmt.Errorf("firing: delay value: %w", err)
	}
	return int64(v), nil
}

func (h *Handler) resolveFromSource(e *pisdf.Edge, lo, hi int64, yield Sink) error {
	srcV := h.Graph.Vertex(e.SourceVertex)
	srcRate, err := h.GetRate(e, true)
	if err != nil {
		return err
	}
	if srcRate == 0 {
		yield(Dependency{TargetVertex: pisdf.NoIndex})
		return nil
	}

	firingStart, err := numeric.FloorDivSigned(lo, srcRate)
	if err != nil {
		return fmt.Errorf("firing: %w", err)
	}
	firingEnd, err := numeric.FloorDivSigned(hi, srcRate)
	if err != nil {
		return fmt.Errorf("firing: %w", err)
	}
	memStart := lo - firingStart*srcRate
	memEnd := hi - firingEnd*srcRate

	switch srcV.Subtype {
	case pisdf.GraphActor:
		return h.recurseIntoChildGraph(srcV, e, firingStart, firingEnd, memStart, memEnd, yield)
	case pisdf.Input:
		return h.recurseToParent(srcV, firingStart, firingEnd, memStart, memEnd, yield)
	case pisdf.DelayActor:
		return h.recurseThroughDelayVertex(srcV, e, firingStart, firingEnd, memStart, memEnd, yield)
	default:
		yield(Dependency{
			TargetVertex:  e.SourceVertex,
			TargetHandler: h,
			SourcePort:    e.SourcePort,
			MemStart:      memStart,
			MemEnd:        memEnd,
			FiringStart:   firingStart,
			FiringEnd:     firingEnd,
		})
		return nil
	}
}

// executionDepsThroughSetter resolves the [lo, hi] window (still in the
// delay-shifted coordinates, so lo and hi are negative) against the edge's
// delay setter, translating indices back into the setter's [0, delay) token
// space first.
func (h *Handler) executionDepsThroughSetter(e *pisdf.Edge, lo, hi int64, yield Sink) error {
	delay, err := h.evalDelay(e)
	if err != nil {
		return err
	}
	lo, hi = lo+delay, hi+delay
	if e.Delay.SetterVertex == pisdf.NoIndex {
		// Persistent delay: the data comes from the reserved delay memory
		// itself, not from another actor's output edge.
		yield(Dependency{
			TargetVertex: pisdf.NoIndex,
			MemStart:     lo,
			MemEnd:       hi,
			FiringStart:  0,
			FiringEnd:    0,
		})
		return nil
	}
	setterV := h.Graph.Vertex(e.Delay.SetterVertex)
	setterEdgeIx := setterV.OutEdges[e.Delay.SetterPort]
	setterEdge := h.Graph.Edge(setterEdgeIx)
	return h.resolveFromSource(setterEdge, lo, hi, yield)
}

func (h *Handler) recurseIntoChildGraph(srcV *pisdf.Vertex, e *pisdf.Edge, firingStart, firingEnd, memStart, memEnd int64, yield Sink) error {
	outIfaceIx := e.SourcePort
	if outIfaceIx < 0 || outIfaceIx >= len(srcV.SubGraph.OutputInterfaces) {
		return fmt.Errorf("firing: vertex %q has no output interface for port %d", srcV.Name, outIfaceIx)
	}
	ifaceVertexIx := srcV.SubGraph.OutputInterfaces[outIfaceIx]
	ifaceVertex := srcV.SubGraph.Vertex(ifaceVertexIx)
	internalEdgeIx := ifaceVertex.InEdges[0]

	srcRate, err := h.GetRate(e, true)
	if err != nil {
		return err
	}
	for k := firingStart; k <= firingEnd; k++ {
		child, err := h.ChildHandler(srcV.Index, k)
		if err != nil {
			return err
		}
		if !child.Resolved() {
			yield(Dependency{TargetVertex: srcV.Index, TargetHandler: h, Unresolved: true, FiringStart: k, FiringEnd: k})
			continue
		}
		// Middle firings are consumed in full; only the boundary firings are
		// clipped to the queried window.
		ms, me := int64(0), srcRate-1
		if k == firingStart {
			ms = memStart
		}
		if k == firingEnd {
			me = memEnd
		}
		internalEdge := child.Graph.Edge(internalEdgeIx)
		if err := child.resolveFromSource(internalEdge, ms, max64(me, ms), yield); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) recurseToParent(srcV *pisdf.Vertex, firingStart, firingEnd, memStart, memEnd int64, yield Sink) error {
	if h.Parent == nil {
		return fmt.Errorf("firing: INPUT interface %q has no parent handler", srcV.Name)
	}
	ifacePos := indexOf(h.Graph.InputInterfaces, srcV.Index)
	if ifacePos < 0 {
		return fmt.Errorf("firing: vertex %q is not a registered input interface", srcV.Name)
	}
	parentVertexIx := parentGraphActorVertex(h.Graph, h.Parent.Graph)
	if parentVertexIx == pisdf.NoIndex {
		return fmt.Errorf("firing: graph %q has no GRAPH vertex in its parent", h.Graph.Name)
	}
	parentVertex := h.Parent.Graph.Vertex(parentVertexIx)
	parentEdgeIx := parentVertex.InEdges[ifacePos]
	parentEdge := h.Parent.Graph.Edge(parentEdgeIx)
	return h.Parent.resolveFromSource(parentEdge, memStart, memEnd, yield)
}

func (h *Handler) recurseThroughDelayVertex(delayV *pisdf.Vertex, _ *pisdf.Edge, firingStart, firingEnd, memStart, memEnd int64, yield Sink) error {
	if len(delayV.InEdges) == 0 {
		yield(Dependency{TargetVertex: pisdf.NoIndex, FiringStart: firingStart, FiringEnd: firingEnd, MemStart: memStart, MemEnd: memEnd})
		return nil
	}
	innerEdge := h.Graph.Edge(delayV.InEdges[0])
	return h.resolveFromSource(innerEdge, memStart, memEnd, yield)
}

func indexOf(s []int, v int) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func parentGraphActorVertex(child, parent *pisdf.Graph) int {
	for _, v := range parent.Vertices {
		if v.Subtype == pisdf.GraphActor && v.SubGraph == child {
			return v.Index
		}
	}
	return pisdf.NoIndex
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// CollectExecutionDependencies materializes ExecutionDependencies into a slice.
func (h *Handler) CollectExecutionDependencies(edgeIx int, firing int64) ([]Dependency, error) {
	var deps []Dependency
	err := h.ExecutionDependencies(edgeIx, firing, func(d Dependency) bool {
		deps = append(deps, d)
		return true
	})
	return deps, err
}

// CountExecutionDependencies counts dependencies without materializing them.
func (h *Handler) CountExecutionDependencies(edgeIx int, firing int64) (int, error) {
	count := 0
	err := h.ExecutionDependencies(edgeIx, firing, func(Dependency) bool {
		count++
		return true
	})
	return count, err
}

// HasUnresolvedExecutionDependency reports whether any dependency in the
// sequence is the "unresolved" sentinel.
func (h *Handler) HasUnresolvedExecutionDependency(edgeIx int, firing int64) (bool, error) {
	found := false
	err := h.ExecutionDependencies(edgeIx, firing, func(d Dependency) bool {
		if d.Unresolved {
			found = true
			return false
		}
		return true
	})
	return found, err
}
