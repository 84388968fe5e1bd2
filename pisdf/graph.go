package pisdf

import (
	"fmt"

	"github.com/preesm/spider2-sub002/core/expr"
)

// RuntimeInfo carries the per-actor scheduling metadata set via set_rt_info:
// the kernel to invoke, the mask of PE types able to run it, and the
// per-PE-type timing expression (here pre-evaluated to a cycle count;
// rate and timing expressions are numeric after parameter substitution).
type RuntimeInfo struct {
	KernelID int
	PETypes  map[int]bool
	PECycles map[int]int64
}

// SupportsPEType reports whether rt advertises compatibility with the given
// PE type id.
func (rt *RuntimeInfo) SupportsPEType(peType int) bool {
	if rt == nil {
		return false
	}
	return rt.PETypes[peType]
}

// CyclesFor returns the cycle cost of running this actor on the given PE
// type, and whether that PE type is supported at all.
func (rt *RuntimeInfo) CyclesFor(peType int) (int64, bool) {
	if rt == nil || !rt.PETypes[peType] {
		return 0, false
	}
	cycles, ok := rt.PECycles[peType]
	return cycles, ok
}

// Vertex is a named node with a subtype tag, holding ordered back-references
// to its edges and parameters. Vertex identity inside a graph is a dense
// integer index (Index); arena storage means the graph never hands out
// owning pointers, only indices.
type Vertex struct {
	Index   int
	Name    string
	Subtype VertexSubtype
	Graph   *Graph

	InEdges  []int // dense by sink port index
	OutEdges []int // dense by source port index

	// InParams are the parameters handed to the kernel as input arguments,
	// in the order given to SetParamInputs.
	InParams []int
	// OutParams are the parameters a CONFIG actor writes at runtime.
	OutParams []int

	RtInfo *RuntimeInfo

	// SubGraph is non-nil iff Subtype == GraphActor: the hierarchical child.
	SubGraph *Graph
}

// Edge is a directed connection (sourceVertex, sourcePortIx, sinkVertex,
// sinkPortIx) carrying two rate expressions and at most one Delay.
type Edge struct {
	Index int
	Graph *Graph

	SourceVertex int
	SourcePort   int
	SourceRate   *expr.Compiled

	SinkVertex int
	SinkPort   int
	SinkRate   *expr.Compiled

	Delay *Delay
}

// Delay is attached to an edge: a non-negative integer value, a persistence
// flag, an optional setter/getter vertex, and — once allocated — a memory
// address.
type Delay struct {
	Edge int

	ValueExpr  *expr.Compiled
	Persistent bool

	SetterVertex int // NoIndex if absent
	SetterPort   int
	GetterVertex int // NoIndex if absent
	GetterPort   int

	// Address is set by the allocator once the persistent-delay region is
	// reserved; NoIndex (as int64 -1) until then.
	Address int64
}

// Param is one of four kinds of named, graph-scoped value.
type Param struct {
	Index int
	Name  string
	Kind  ParamKind
	Graph *Graph

	// Expr holds the expression for Static and DynamicDependant parameters.
	Expr *expr.Compiled

	// ParentParam is the index, in the parent graph's Params slice, that an
	// Inherited parameter copies from. NoIndex for the other kinds.
	ParentParam int
}

// Graph is a vertex whose subtype is GraphActor; it owns its vertices,
// edges, parameters and ordered input/output interfaces. The root graph has
// no container (Parent == nil).
type Graph struct {
	Name string

	Parent            *Graph
	ParentVertexIndex int // NoIndex for the root graph

	Vertices []*Vertex
	Edges    []*Edge
	Params   []*Param

	// InputInterfaces/OutputInterfaces list vertex indices (subtype Input or
	// Output) in the hierarchical-boundary order used to match rates against
	// the containing GRAPH vertex's edges.
	InputInterfaces  []int
	OutputInterfaces []int

	paramByName map[string]int
}

// IsDynamic reports whether the graph contains at least one Dynamic
// parameter (equivalently, at least one configuration actor).
func (g *Graph) IsDynamic() bool {
	for _, p := range g.Params {
		if p.Kind == Dynamic {
			return true
		}
	}
	return false
}

// Vertex returns the vertex at the given dense index.
func (g *Graph) Vertex(ix int) *Vertex {
	if ix < 0 || ix >= len(g.Vertices) {
		return nil
	}
	return g.Vertices[ix]
}

// Edge returns the edge at the given dense index.
func (g *Graph) Edge(ix int) *Edge {
	if ix < 0 || ix >= len(g.Edges) {
		return nil
	}
	return g.Edges[ix]
}

// Param returns the parameter at the given dense index.
func (g *Graph) Param(ix int) *Param {
	if ix < 0 || ix >= len(g.Params) {
		return nil
	}
	return g.Params[ix]
}

// ParamByName looks up a parameter by its (graph-unique) name.
func (g *Graph) ParamByName(name string) (*Param, bool) {
	ix, ok := g.paramByName[name]
	if !ok {
		return nil, false
	}
	return g.Params[ix], true
}

// RemoveVertex erases the vertex at ix using out-of-order erase: the last
// element is moved into the freed slot and its Index updated, so every
// other vertex keeps a dense, contiguous index range.
func (g *Graph) RemoveVertex(ix int) error {
	if ix < 0 || ix >= len(g.Vertices) {
		return fmt.Errorf("pisdf: vertex index %d out of range", ix)
	}
	last := len(g.Vertices) - 1
	g.Vertices[ix] = g.Vertices[last]
	g.Vertices[ix].Index = ix
	g.Vertices = g.Vertices[:last]
	return nil
}

// RemoveEdge erases the edge at ix using the same out-of-order erase
// discipline as RemoveVertex.
func (g *Graph) RemoveEdge(ix int) error {
	if ix < 0 || ix >= len(g.Edges) {
		return fmt.Errorf("pisdf: edge index %d out of range", ix)
	}
	last := len(g.Edges) - 1
	g.Edges[ix] = g.Edges[last]
	g.Edges[ix].Index = ix
	g.Edges = g.Edges[:last]
	return nil
}

// RemoveParam erases the parameter at ix using the same out-of-order erase
// discipline, and keeps paramByName consistent.
func (g *Graph) RemoveParam(ix int) error {
	if ix < 0 || ix >= len(g.Params) {
		return fmt.Errorf("pisdf: param index %d out of range", ix)
	}
	delete(g.paramByName, g.Params[ix].Name)
	last := len(g.Params) - 1
	g.Params[ix] = g.Params[last]
	g.Params[ix].Index = ix
	g.paramByName[g.Params[ix].Name] = ix
	g.Params = g.Params[:last]
	return nil
}

// MoveVertexTo atomically transfers ownership of the vertex at ix from g to
// dst, updating both its Index and Graph back-reference.
func (g *Graph) MoveVertexTo(ix int, dst *Graph) error {
	if ix < 0 || ix >= len(g.Vertices) {
		return fmt.Errorf("pisdf: vertex index %d out of range", ix)
	}
	v := g.Vertices[ix]
	if err := g.RemoveVertex(ix); err != nil {
		return err
	}
	v.Index = len(dst.Vertices)
	v.Graph = dst
	dst.Vertices = append(dst.Vertices, v)
	return nil
}

// MoveEdgeTo atomically transfers ownership of the edge at ix from g to dst.
func (g *Graph) MoveEdgeTo(ix int, dst *Graph) error {
	if ix < 0 || ix >= len(g.Edges) {
		return fmt.Errorf("pisdf: edge index %d out of range", ix)
	}
	e := g.Edges[ix]
	if err := g.RemoveEdge(ix); err != nil {
		return err
	}
	e.Index = len(dst.Edges)
	e.Graph = dst
	dst.Edges = append(dst.Edges, e)
	return nil
}
