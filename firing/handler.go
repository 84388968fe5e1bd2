// Package firing implements the per-(sub)graph-firing handler and the lazy
// execution-/consumption-dependency iterators that walk producer/consumer
// relationships across hierarchy boundaries and delays.
package firing

import (
	"errors"
	"fmt"
	"math"

	"github.com/preesm/spider2-sub002/pisdf"
	"github.com/preesm/spider2-sub002/pisdf/brv"
)

// ErrAlreadyResolved is returned by SetParamValue when the target slot has
// already received a value.
var ErrAlreadyResolved = errors.New("firing: parameter already resolved")

// childKey identifies a child handler by the GraphActor vertex it fires
// under and the firing index of that vertex within its own handler.
type childKey struct {
	vertexIx int
	firing   int64
}

// TaskKey identifies a scheduled firing within a handler's task-index table.
type TaskKey struct {
	VertexIx int
	Firing   int64
}

// Handler is the per-(sub)graph-firing context: concrete parameter values,
// the resolved repetition vector, the task-index table, and per-child-graph
// sub-handlers. A handler is "resolved" once every dynamic parameter has a
// concrete value; otherwise it blocks scheduling of the firings below it.
type Handler struct {
	Graph  *pisdf.Graph
	Parent *Handler
	// Firing is this handler's own firing index within the parent's GRAPH
	// vertex repetition (0 for the root handler, which has no parent).
	Firing int64

	values []float64
	set    []bool

	RepetitionVector brv.Vector

	TaskIndex map[TaskKey]int
	children  map[childKey]*Handler
}

// NewRootHandler creates the handler for the root graph's single firing.
func NewRootHandler(g *pisdf.Graph) *Handler {
	return newHandler(g, nil, 0)
}

func newHandler(g *pisdf.Graph, parent *Handler, firingIx int64) *Handler {
	return &Handler{
		Graph:     g,
		Parent:    parent,
		Firing:    firingIx,
		values:    make([]float64, len(g.Params)),
		set:       make([]bool, len(g.Params)),
		TaskIndex: make(map[TaskKey]int),
		children:  make(map[childKey]*Handler),
	}
}

// ChildHandler returns (creating if necessary) the sub-handler for firing
// firingIx of the GraphActor vertex at vertexIx.
func (h *Handler) ChildHandler(vertexIx int, firingIx int64) (*Handler, error) {
	v := h.Graph.Vertex(vertexIx)
	if v == nil || v.Subtype != pisdf.GraphActor || v.SubGraph == nil {
		return nil, fmt.Errorf("firing: vertex %d is not a GRAPH vertex with an attached sub-graph", vertexIx)
	}
	key := childKey{vertexIx: vertexIx, firing: firingIx}
	if child, ok := h.children[key]; ok {
		return child, nil
	}
	child := newHandler(v.SubGraph, h, firingIx)
	h.children[key] = child

	for _, p := range v.SubGraph.Params {
		if p.Kind == pisdf.Inherited {
			parentVal := h.values[p.ParentParam]
			if !h.set[p.ParentParam] {
				continue
			}
			if err := child.SetParamValue(p.Index, parentVal); err != nil {
				return nil, err
			}
		}
	}
	return child, nil
}

// SetParamValue assigns the value of a DYNAMIC (or resolves an INHERITED)
// parameter slot. Fails with ErrAlreadyResolved if the slot was already set.
func (h *Handler) SetParamValue(ix int, value float64) error {
	if ix < 0 || ix >= len(h.values) {
		return fmt.Errorf("firing: parameter index %d out of range", ix)
	}
	if h.set[ix] {
		return fmt.Errorf("firing: param %d: %w", ix, ErrAlreadyResolved)
	}
	h.values[ix] = value
	h.set[ix] = true
	return nil
}

// EvaluateStaticAndDependantParams assigns every STATIC and, once its
// dependencies are set, every DYNAMIC_DEPENDANT parameter's value from its
// compiled expression.
func (h *Handler) EvaluateStaticAndDependantParams() error {
	changed := true
	for changed {
		changed = false
		for _, p := range h.Graph.Params {
			if h.set[p.Index] {
				continue
			}
			switch p.Kind {
			case pisdf.Static:
				v, err := p.Expr.Eval(h.values)
				if err != nil {
					return fmt.Errorf("firing: param %q: %w", p.Name, err)
				}
				if err := h.SetParamValue(p.Index, v); err != nil {
					return err
				}
				changed = true
			case pisdf.DynamicDependant:
				if h.allDepsResolved(p) {
					v, err := p.Expr.Eval(h.values)
					if err != nil {
						return fmt.Errorf("firing: param %q: %w", p.Name, err)
					}
					if err := h.SetParamValue(p.Index, v); err != nil {
						return err
					}
					changed = true
				}
			}
		}
	}
	return nil
}

// allDepsResolved reports whether every DYNAMIC parameter p's expression
// could reference has a value yet; STATIC and already-settled
// DYNAMIC_DEPENDANT parameters are handled by the fixed-point loop above.
func (h *Handler) allDepsResolved(p *pisdf.Param) bool {
	for _, q := range h.Graph.Params {
		if q.Kind == pisdf.Dynamic && !h.set[q.Index] {
			return false
		}
	}
	return true
}

// Resolved reports whether every dynamic parameter of this handler's graph
// has received its runtime value.
func (h *Handler) Resolved() bool {
	for _, p := range h.Graph.Params {
		if p.Kind == pisdf.Dynamic && !h.set[p.Index] {
			return false
		}
	}
	return true
}

// ParamValues returns the handler's parameter values slice, indexed like
// h.Graph.Params.
func (h *Handler) ParamValues() []float64 {
	return h.values
}

// ParamSet reports whether parameter ix has received a value yet.
func (h *Handler) ParamSet(ix int) bool {
	return ix >= 0 && ix < len(h.set) && h.set[ix]
}

// Children returns every sub-handler instantiated so far under this one, in
// no particular order.
func (h *Handler) Children() []*Handler {
	out := make([]*Handler, 0, len(h.children))
	for _, c := range h.children {
		out = append(out, c)
	}
	return out
}

// GetRate evaluates the rate of edge e on the side given by fromSource,
// against this handler's parameter table.
func (h *Handler) GetRate(e *pisdf.Edge, fromSource bool) (int64, error) {
	compiled := e.SinkRate
	if fromSource {
		compiled = e.SourceRate
	}
	v, err := compiled.Eval(h.values)
	if err != nil {
		return 0, fmt.Errorf("firing: %w", err)
	}
	return int64(math.Round(v)), nil
}

// ComputeRepetitionVector resolves the repetition vector for this handler's
// graph from its current (possibly partially resolved) parameter values. For
// a sub-graph handler the raw vector is then adjusted against the rates
// crossing each hierarchical interface.
func (h *Handler) ComputeRepetitionVector() error {
	rv, err := brv.Compute(h.Graph, h.values)
	if err != nil {
		return err
	}
	if h.Parent != nil {
		rv, err = h.adjustForInterfaces(rv)
		if err != nil {
			return err
		}
	}
	h.RepetitionVector = rv
	return nil
}

// adjustForInterfaces enforces the interface rate-matching constraint: the
// rate crossing each boundary per graph firing must equal the firing count
// of its internal endpoint times that endpoint's local rate; on mismatch the
// counts are scaled up uniformly.
func (h *Handler) adjustForInterfaces(rv brv.Vector) (brv.Vector, error) {
	parentVertexIx := parentGraphActorVertex(h.Graph, h.Parent.Graph)
	if parentVertexIx == pisdf.NoIndex {
		return rv, nil
	}
	parentVertex := h.Parent.Graph.Vertex(parentVertexIx)

	for pos, ifaceIx := range h.Graph.InputInterfaces {
		iface := h.Graph.Vertex(ifaceIx)
		if len(iface.OutEdges) == 0 || pos >= len(parentVertex.InEdges) {
			continue
		}
		external, err := h.Parent.GetRate(h.Parent.Graph.Edge(parentVertex.InEdges[pos]), false)
		if err != nil {
			return nil, err
		}
		inner := h.Graph.Edge(iface.OutEdges[0])
		local, err := h.GetRate(inner, false)
		if err != nil {
			return nil, err
		}
		if _, ok := rv[inner.SinkVertex]; !ok {
			continue
		}
		rv, err = brv.AdjustForInterfaceRate(rv, inner.SinkVertex, local, external)
		if err != nil {
			return nil, err
		}
	}
	for pos, ifaceIx := range h.Graph.OutputInterfaces {
		iface := h.Graph.Vertex(ifaceIx)
		if len(iface.InEdges) == 0 || pos >= len(parentVertex.OutEdges) {
			continue
		}
		external, err := h.Parent.GetRate(h.Parent.Graph.Edge(parentVertex.OutEdges[pos]), true)
		if err != nil {
			return nil, err
		}
		inner := h.Graph.Edge(iface.InEdges[0])
		local, err := h.GetRate(inner, true)
		if err != nil {
			return nil, err
		}
		if _, ok := rv[inner.SourceVertex]; !ok {
			continue
		}
		rv, err = brv.AdjustForInterfaceRate(rv, inner.SourceVertex, local, external)
		if err != nil {
			return nil, err
		}
	}
	return rv, nil
}
