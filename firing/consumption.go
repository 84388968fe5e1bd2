package firing

import (
	"fmt"

	"github.com/preesm/spider2-sub002/core/numeric"
	"github.com/preesm/spider2-sub002/pisdf"
)

// ConsumptionDependencies is the consumer-side query, symmetric to
// ExecutionDependencies: given a producer firing on edgeIx's source port, it
// yields the ordered set of consumer dependencies covering the produced
// interval [firing*srcRate, (firing+1)*srcRate - 1]. Used by the allocator
// to determine reference counts on output FIFOs.
func (h *Handler) ConsumptionDependencies(edgeIx int, firing int64, yield Sink) error {
	e := h.Graph.Edge(edgeIx)
	if e == nil {
		return fmt.Errorf("firing: edge %d not found", edgeIx)
	}
	srcRate, err := h.GetRate(e, true)
	if err != nil {
		return err
	}
	if srcRate == 0 {
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

	produced := firing*srcRate + delay
	lower, upper := produced, produced+srcRate-1

	return h.resolveToConsumer(e, lower, upper, yield)
}

func (h *Handler) resolveToConsumer(e *pisdf.Edge, lo, hi int64, yield Sink) error {
	snkV := h.Graph.Vertex(e.SinkVertex)
	snkRate, err := h.GetRate(e, false)
	if err != nil {
		return err
	}
	if snkRate == 0 {
		if e.Delay != nil && e.Delay.GetterVertex != pisdf.NoIndex {
			return h.resolveToGetter(e, lo, hi, yield)
		}
		yield(Dependency{TargetVertex: pisdf.NoIndex})
		return nil
	}

	firingStart, err := numeric.FloorDivSigned(lo, snkRate)
	if err != nil {
		return fmt.Errorf("firing: %w", err)
	}
	firingEnd, err := numeric.FloorDivSigned(hi, snkRate)
	if err != nil {
		return fmt.Errorf("firing: %w", err)
	}
	memStart := lo - firingStart*snkRate
	memEnd := hi - firingEnd*snkRate

	switch snkV.Subtype {
	case pisdf.Output:
		return h.recurseConsumerToParent(snkV, firingStart, firingEnd, memStart, memEnd, yield)
	case pisdf.GraphActor:
		return h.recurseConsumerIntoChild(snkV, e, firingStart, firingEnd, memStart, memEnd, yield)
	default:
		yield(Dependency{
			TargetVertex:  e.SinkVertex,
			TargetHandler: h,
			SourcePort:    e.SinkPort,
			MemStart:      memStart,
			MemEnd:        memEnd,
			FiringStart:   firingStart,
			FiringEnd:     firingEnd,
		})
		return nil
	}
}

func (h *Handler) resolveToGetter(e *pisdf.Edge, lo, hi int64, yield Sink) error {
	getterV := h.Graph.Vertex(e.Delay.GetterVertex)
	getterEdgeIx := getterV.InEdges[e.Delay.GetterPort]
	getterEdge := h.Graph.Edge(getterEdgeIx)
	return h.resolveToConsumer(getterEdge, lo, hi, yield)
}

func (h *Handler) recurseConsumerToParent(outIfaceV *pisdf.Vertex, firingStart, firingEnd, memStart, memEnd int64, yield Sink) error {
	if h.Parent == nil {
		return fmt.Errorf("firing: OUTPUT interface %q has no parent handler", outIfaceV.Name)
	}
	ifacePos := indexOf(h.Graph.OutputInterfaces, outIfaceV.Index)
	if ifacePos < 0 {
		return fmt.Errorf("firing: vertex %q is not a registered output interface", outIfaceV.Name)
	}
	parentVertexIx := parentGraphActorVertex(h.Graph, h.Parent.Graph)
	if parentVertexIx == pisdf.NoIndex {
		return fmt.Errorf("firing: graph %q has no GRAPH vertex in its parent", h.Graph.Name)
	}
	parentVertex := h.Parent.Graph.Vertex(parentVertexIx)
	parentEdgeIx := parentVertex.OutEdges[ifacePos]
	parentEdge := h.Parent.Graph.Edge(parentEdgeIx)
	return h.Parent.resolveToConsumer(parentEdge, memStart, memEnd, yield)
}

func (h *Handler) recurseConsumerIntoChild(graphV *pisdf.Vertex, e *pisdf.Edge, firingStart, firingEnd, memStart, memEnd int64, yield Sink) error {
	inIfaceIx := e.SinkPort
	if inIfaceIx < 0 || inIfaceIx >= len(graphV.SubGraph.InputInterfaces) {
		return fmt.Errorf("firing: vertex %q has no input interface for port %d", graphV.Name, inIfaceIx)
	}
	ifaceVertexIx := graphV.SubGraph.InputInterfaces[inIfaceIx]
	ifaceVertex := graphV.SubGraph.Vertex(ifaceVertexIx)
	internalEdgeIx := ifaceVertex.OutEdges[0]

	snkRate, err := h.GetRate(e, false)
	if err != nil {
		return err
	}
	for k := firingStart; k <= firingEnd; k++ {
		child, err := h.ChildHandler(graphV.Index, k)
		if err != nil {
			return err
		}
		if !child.Resolved() {
			yield(Dependency{TargetVertex: graphV.Index, TargetHandler: h, Unresolved: true, FiringStart: k, FiringEnd: k})
			continue
		}
		// Middle firings consume their full window; boundary firings are
		// clipped to the queried range.
		ms, me := int64(0), snkRate-1
		if k == firingStart {
			ms = memStart
		}
		if k == firingEnd {
			me = memEnd
		}
		internalEdge := child.Graph.Edge(internalEdgeIx)
		if err := child.resolveToConsumer(internalEdge, ms, max64(me, ms), yield); err != nil {
			return err
		}
	}
	return nil
}

// CollectConsumptionDependencies materializes ConsumptionDependencies into a slice.
func (h *Handler) CollectConsumptionDependencies(edgeIx int, firing int64) ([]Dependency, error) {
	var deps []Dependency
	err := h.ConsumptionDependencies(edgeIx, firing, func(d Dependency) bool {
		deps = append(deps, d)
		return true
	})
	return deps, err
}

// CountConsumptionDependencies counts dependencies without materializing them.
func (h *Handler) CountConsumptionDependencies(edgeIx int, firing int64) (int, error) {
	count := 0
	err := h.ConsumptionDependencies(edgeIx, firing, func(Dependency) bool {
		count++
		return true
	})
	return count, err
}

// HasUnresolvedConsumptionDependency reports whether any dependency in the
// sequence is the "unresolved" sentinel.
func (h *Handler) HasUnresolvedConsumptionDependency(edgeIx int, firing int64) (bool, error) {
	found := false
	err := h.ConsumptionDependencies(edgeIx, firing, func(d Dependency) bool {
		if d.Unresolved {
			found = true
			return false
		}
		return true
	})
	return found, err
}
