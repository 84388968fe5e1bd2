package pisdf

import (
	"errors"
	"fmt"

	"github.com/preesm/spider2-sub002/core/expr"
)

// pendingVertex accumulates everything needed to build a Vertex before
// indices are assigned.
type pendingVertex struct {
	name          string
	subtype       VertexSubtype
	inPorts       int
	outPorts      int
	rtInfo        *RuntimeInfo
	subGraph      *Graph
	inParamNames  []string
	outParamNames []string
}

// pendingEdge accumulates everything needed to build an Edge by vertex name
// before the vertices receive dense indices.
type pendingEdge struct {
	srcName    string
	srcPort    int
	srcRateTok []string
	snkName    string
	snkPort    int
	snkRateTok []string
	delay      *pendingDelay
}

type pendingDelay struct {
	valueTok   []string
	persistent bool
	setterName string
	setterPort int
	getterName string
	getterPort int
	hasSetter  bool
	hasGetter  bool
}

type pendingParam struct {
	name       string
	kind       ParamKind
	exprTok    []string // Static, DynamicDependant
	parentName string   // Inherited
}

// GraphBuilder constructs a validated Graph using a fluent API, accumulating
// build errors and reporting them all at Build() time rather than failing
// on the first mistake.
type GraphBuilder struct {
	name              string
	parent            *Graph
	parentVertexIndex int

	vertexOrder []string
	vertices    map[string]*pendingVertex

	edges []*pendingEdge

	paramOrder []string
	params     map[string]*pendingParam

	inputInterfaces  []string
	outputInterfaces []string

	buildErrors []error
}

// NewGraphBuilder creates a builder for the root graph named name.
func NewGraphBuilder(name string) *GraphBuilder {
	return &GraphBuilder{
		name:              name,
		parentVertexIndex: NoIndex,
		vertices:          make(map[string]*pendingVertex),
		params:            make(map[string]*pendingParam),
	}
}

// NewSubGraphBuilder creates a builder for a hierarchical sub-graph attached
// to the GraphActor vertex parentVertexIndex within parent.
func NewSubGraphBuilder(name string, parent *Graph, parentVertexIndex int) *GraphBuilder {
	b := NewGraphBuilder(name)
	b.parent = parent
	b.parentVertexIndex = parentVertexIndex
	return b
}

func (b *GraphBuilder) fail(format string, args ...any) {
	b.buildErrors = append(b.buildErrors, fmt.Errorf(format, args...))
}

// AddVertex registers a vertex with the given port counts. Subtype GraphActor
// vertices must have their SubGraph attached with AttachSubGraph before Build.
func (b *GraphBuilder) AddVertex(name string, subtype VertexSubtype, inPorts, outPorts int) *GraphBuilder {
	if name == "" {
		b.fail("pisdf: vertex name must not be empty")
		return b
	}
	if _, exists := b.vertices[name]; exists {
		b.fail("pisdf: duplicate vertex name %q", name)
		return b
	}
	b.vertices[name] = &pendingVertex{name: name, subtype: subtype, inPorts: inPorts, outPorts: outPorts}
	b.vertexOrder = append(b.vertexOrder, name)
	return b
}

// SetRuntimeInfo attaches scheduling metadata to a previously added vertex.
func (b *GraphBuilder) SetRuntimeInfo(name string, kernelID int, peTypes []int, peCycles map[int]int64) *GraphBuilder {
	v, ok := b.vertices[name]
	if !ok {
		b.fail("pisdf: set_rt_info on unknown vertex %q", name)
		return b
	}
	types := make(map[int]bool, len(peTypes))
	for _, t := range peTypes {
		types[t] = true
	}
	v.rtInfo = &RuntimeInfo{KernelID: kernelID, PETypes: types, PECycles: peCycles}
	return b
}

// SetParamInputs declares, in kernel-argument order, which parameters the
// runner passes to name's kernel as runtime input parameters (the job
// layout's InputParams). Order matters: it is the order the runner reads
// them off the wire.
func (b *GraphBuilder) SetParamInputs(name string, paramNames ...string) *GraphBuilder {
	v, ok := b.vertices[name]
	if !ok {
		b.fail("pisdf: set_param_inputs on unknown vertex %q", name)
		return b
	}
	v.inParamNames = paramNames
	return b
}

// SetConfigOutputs declares, in the order the runner reports them back, the
// DYNAMIC parameters a CONFIG actor resolves at runtime. The launcher writes
// JOB_SENT_PARAM values into these parameters in this order.
func (b *GraphBuilder) SetConfigOutputs(name string, paramNames ...string) *GraphBuilder {
	v, ok := b.vertices[name]
	if !ok {
		b.fail("pisdf: set_config_outputs on unknown vertex %q", name)
		return b
	}
	if v.subtype != Config {
		b.fail("pisdf: set_config_outputs on vertex %q is not subtype CONFIG", name)
		return b
	}
	v.outParamNames = paramNames
	return b
}

// AttachSubGraph wires a fully-built child Graph to a GraphActor vertex.
func (b *GraphBuilder) AttachSubGraph(vertexName string, sub *Graph) *GraphBuilder {
	v, ok := b.vertices[vertexName]
	if !ok {
		b.fail("pisdf: attach sub-graph to unknown vertex %q", vertexName)
		return b
	}
	if v.subtype != GraphActor {
		b.fail("pisdf: vertex %q is not subtype GRAPH", vertexName)
		return b
	}
	v.subGraph = sub
	return b
}

// AddEdge registers a directed edge between two vertex ports with their rate
// expressions given as RPN token streams.
func (b *GraphBuilder) AddEdge(srcName string, srcPort int, srcRate []string, snkName string, snkPort int, snkRate []string) *GraphBuilder {
	if _, ok := b.vertices[srcName]; !ok {
		b.fail("pisdf: edge references non-existent source vertex %q", srcName)
	}
	if _, ok := b.vertices[snkName]; !ok {
		b.fail("pisdf: edge references non-existent sink vertex %q", snkName)
	}
	b.edges = append(b.edges, &pendingEdge{
		srcName: srcName, srcPort: srcPort, srcRateTok: srcRate,
		snkName: snkName, snkPort: snkPort, snkRateTok: snkRate,
	})
	return b
}

// AddDelay attaches a delay to the first added edge matching
// (srcName, srcPort, snkName, snkPort).
func (b *GraphBuilder) AddDelay(srcName string, srcPort int, snkName string, snkPort int, valueTok []string, persistent bool, setterName string, setterPort int, getterName string, getterPort int) *GraphBuilder {
	var target *pendingEdge
	for _, e := range b.edges {
		if e.srcName == srcName && e.srcPort == srcPort && e.snkName == snkName && e.snkPort == snkPort {
			target = e
			break
		}
	}
	if target == nil {
		b.fail("pisdf: delay references non-existent edge %s:%d -> %s:%d", srcName, srcPort, snkName, snkPort)
		return b
	}
	if persistent && (setterName != "" || getterName != "") {
		b.fail("pisdf: persistent delay on edge %s:%d -> %s:%d must not have a setter/getter", srcName, srcPort, snkName, snkPort)
		return b
	}
	target.delay = &pendingDelay{
		valueTok: valueTok, persistent: persistent,
		setterName: setterName, setterPort: setterPort, hasSetter: setterName != "",
		getterName: getterName, getterPort: getterPort, hasGetter: getterName != "",
	}
	return b
}

// AddStaticParam registers a STATIC parameter evaluated once at build time.
func (b *GraphBuilder) AddStaticParam(name string, exprTok []string) *GraphBuilder {
	return b.addParam(name, &pendingParam{name: name, kind: Static, exprTok: exprTok})
}

// AddDynamicParam registers a DYNAMIC parameter assigned by a CONFIG actor at runtime.
func (b *GraphBuilder) AddDynamicParam(name string) *GraphBuilder {
	return b.addParam(name, &pendingParam{name: name, kind: Dynamic})
}

// AddDynamicDependantParam registers a DYNAMIC_DEPENDANT parameter whose
// expression is over other dynamic parameters.
func (b *GraphBuilder) AddDynamicDependantParam(name string, exprTok []string) *GraphBuilder {
	return b.addParam(name, &pendingParam{name: name, kind: DynamicDependant, exprTok: exprTok})
}

// AddInheritedParam registers an INHERITED parameter copying parentName from
// the parent graph at firing time.
func (b *GraphBuilder) AddInheritedParam(name string, parentName string) *GraphBuilder {
	return b.addParam(name, &pendingParam{name: name, kind: Inherited, parentName: parentName})
}

func (b *GraphBuilder) addParam(name string, p *pendingParam) *GraphBuilder {
	if name == "" {
		b.fail("pisdf: parameter name must not be empty")
		return b
	}
	if _, exists := b.params[name]; exists {
		b.fail("pisdf: duplicate parameter name %q", name)
		return b
	}
	b.params[name] = p
	b.paramOrder = append(b.paramOrder, name)
	return b
}

// AddInputInterface registers an input-interface vertex (1 output port,
// representing the hierarchical boundary) in declaration order.
func (b *GraphBuilder) AddInputInterface(name string) *GraphBuilder {
	b.AddVertex(name, Input, 0, 1)
	b.inputInterfaces = append(b.inputInterfaces, name)
	return b
}

// AddOutputInterface registers an output-interface vertex (1 input port) in
// declaration order.
func (b *GraphBuilder) AddOutputInterface(name string) *GraphBuilder {
	b.AddVertex(name, Output, 1, 0)
	b.outputInterfaces = append(b.outputInterfaces, name)
	return b
}

// Build validates and constructs the Graph, compiling every rate/value/param
// expression against the graph's own parameter symbol table.
func (b *GraphBuilder) Build() (*Graph, error) {
	if len(b.buildErrors) > 0 {
		return nil, fmt.Errorf("pisdf: graph %q build errors: %w", b.name, errors.Join(b.buildErrors...))
	}

	g := &Graph{
		Name:              b.name,
		Parent:            b.parent,
		ParentVertexIndex: b.parentVertexIndex,
		paramByName:       make(map[string]int, len(b.paramOrder)),
	}

	// Assign dense vertex indices in declaration order.
	vertexIx := make(map[string]int, len(b.vertexOrder))
	for i, name := range b.vertexOrder {
		pv := b.vertices[name]
		v := &Vertex{
			Index:    i,
			Name:     name,
			Subtype:  pv.subtype,
			Graph:    g,
			InEdges:  make([]int, pv.inPorts),
			OutEdges: make([]int, pv.outPorts),
			RtInfo:   pv.rtInfo,
			SubGraph: pv.subGraph,
		}
		for p := range v.InEdges {
			v.InEdges[p] = NoIndex
		}
		for p := range v.OutEdges {
			v.OutEdges[p] = NoIndex
		}
		g.Vertices = append(g.Vertices, v)
		vertexIx[name] = i
	}

	// Assign dense parameter indices in declaration order, so expressions can
	// be compiled against a stable symbol table.
	symbolNames := make([]string, len(b.paramOrder))
	for i, name := range b.paramOrder {
		symbolNames[i] = name
	}
	paramIx := make(map[string]int, len(b.paramOrder))
	for i, name := range b.paramOrder {
		paramIx[name] = i
		g.paramByName[name] = i
	}

	for i, name := range b.paramOrder {
		pp := b.params[name]
		param := &Param{Index: i, Name: name, Kind: pp.kind, Graph: g, ParentParam: NoIndex}
		switch pp.kind {
		case Static, DynamicDependant:
			compiled, err := expr.Compile(pp.exprTok, symbolNames)
			if err != nil {
				return nil, fmt.Errorf("pisdf: graph %q param %q: %w", b.name, name, err)
			}
			param.Expr = compiled
		case Inherited:
			if b.parent == nil {
				return nil, fmt.Errorf("pisdf: graph %q param %q is INHERITED but graph has no parent", b.name, name)
			}
			parentParam, ok := b.parent.ParamByName(pp.parentName)
			if !ok {
				return nil, fmt.Errorf("pisdf: graph %q param %q inherits unknown parent parameter %q", b.name, name, pp.parentName)
			}
			param.ParentParam = parentParam.Index
		}
		g.Params = append(g.Params, param)
	}

	// Resolve each vertex's declared input/output parameter names to the
	// dense param indices the launcher and firing handler operate on.
	for _, name := range b.vertexOrder {
		pv := b.vertices[name]
		v := g.Vertices[vertexIx[name]]
		if len(pv.inParamNames) > 0 {
			v.InParams = make([]int, len(pv.inParamNames))
			for i, pn := range pv.inParamNames {
				pix, ok := paramIx[pn]
				if !ok {
					return nil, fmt.Errorf("pisdf: graph %q vertex %q input parameter %q not declared", b.name, name, pn)
				}
				v.InParams[i] = pix
			}
		}
		if len(pv.outParamNames) > 0 {
			v.OutParams = make([]int, len(pv.outParamNames))
			for i, pn := range pv.outParamNames {
				pix, ok := paramIx[pn]
				if !ok {
					return nil, fmt.Errorf("pisdf: graph %q vertex %q output parameter %q not declared", b.name, name, pn)
				}
				v.OutParams[i] = pix
			}
		}
	}

	// Wire edges, checking port-uniqueness invariant (i) as we go.
	for i, pe := range b.edges {
		srcIx, srcOk := vertexIx[pe.srcName]
		snkIx, snkOk := vertexIx[pe.snkName]
		if !srcOk || !snkOk {
			return nil, fmt.Errorf("pisdf: graph %q edge %d references unknown vertex", b.name, i)
		}
		srcV, snkV := g.Vertices[srcIx], g.Vertices[snkIx]
		if pe.srcPort < 0 || pe.srcPort >= len(srcV.OutEdges) {
			return nil, fmt.Errorf("pisdf: graph %q vertex %q has no output port %d", b.name, pe.srcName, pe.srcPort)
		}
		if pe.snkPort < 0 || pe.snkPort >= len(snkV.InEdges) {
			return nil, fmt.Errorf("pisdf: graph %q vertex %q has no input port %d", b.name, pe.snkName, pe.snkPort)
		}
		if srcV.OutEdges[pe.srcPort] != NoIndex {
			return nil, fmt.Errorf("pisdf: graph %q vertex %q output port %d already has an edge", b.name, pe.srcName, pe.srcPort)
		}
		if snkV.InEdges[pe.snkPort] != NoIndex {
			return nil, fmt.Errorf("pisdf: graph %q vertex %q input port %d already has an edge", b.name, pe.snkName, pe.snkPort)
		}

		srcRate, err := expr.Compile(pe.srcRateTok, symbolNames)
		if err != nil {
			return nil, fmt.Errorf("pisdf: graph %q edge %s:%d source rate: %w", b.name, pe.srcName, pe.srcPort, err)
		}
		snkRate, err := expr.Compile(pe.snkRateTok, symbolNames)
		if err != nil {
			return nil, fmt.Errorf("pisdf: graph %q edge %s:%d sink rate: %w", b.name, pe.snkName, pe.snkPort, err)
		}

		e := &Edge{
			Index: i, Graph: g,
			SourceVertex: srcIx, SourcePort: pe.srcPort, SourceRate: srcRate,
			SinkVertex: snkIx, SinkPort: pe.snkPort, SinkRate: snkRate,
		}
		g.Edges = append(g.Edges, e)
		srcV.OutEdges[pe.srcPort] = i
		snkV.InEdges[pe.snkPort] = i

		if pe.delay != nil {
			d := &Delay{Edge: i, Persistent: pe.delay.persistent, SetterVertex: NoIndex, GetterVertex: NoIndex, Address: -1}
			valueExpr, err := expr.Compile(pe.delay.valueTok, symbolNames)
			if err != nil {
				return nil, fmt.Errorf("pisdf: graph %q delay on edge %d value: %w", b.name, i, err)
			}
			d.ValueExpr = valueExpr
			if pe.delay.hasSetter {
				setterIx, ok := vertexIx[pe.delay.setterName]
				if !ok {
					return nil, fmt.Errorf("pisdf: graph %q delay setter %q not found", b.name, pe.delay.setterName)
				}
				d.SetterVertex = setterIx
				d.SetterPort = pe.delay.setterPort
			}
			if pe.delay.hasGetter {
				getterIx, ok := vertexIx[pe.delay.getterName]
				if !ok {
					return nil, fmt.Errorf("pisdf: graph %q delay getter %q not found", b.name, pe.delay.getterName)
				}
				d.GetterVertex = getterIx
				d.GetterPort = pe.delay.getterPort
			}
			e.Delay = d
		}
	}

	// A non-persistent delay with neither setter nor getter is implicitly
	// bracketed by INIT (setter) and END (getter) vertices, connected by an
	// edge carrying the delay value as its rate on both sides, so the first
	// reads and leftover writes of the delayed edge resolve against real
	// firings.
	for _, e := range g.Edges {
		d := e.Delay
		if d == nil || d.Persistent || d.SetterVertex != NoIndex || d.GetterVertex != NoIndex {
			continue
		}
		initV := &Vertex{
			Index:    len(g.Vertices),
			Name:     fmt.Sprintf("init_%d", e.Index),
			Subtype:  Init,
			Graph:    g,
			OutEdges: []int{NoIndex},
		}
		g.Vertices = append(g.Vertices, initV)
		endV := &Vertex{
			Index:   len(g.Vertices),
			Name:    fmt.Sprintf("end_%d", e.Index),
			Subtype: End,
			Graph:   g,
			InEdges: []int{NoIndex},
		}
		g.Vertices = append(g.Vertices, endV)
		bracket := &Edge{
			Index: len(g.Edges), Graph: g,
			SourceVertex: initV.Index, SourcePort: 0, SourceRate: d.ValueExpr,
			SinkVertex: endV.Index, SinkPort: 0, SinkRate: d.ValueExpr,
		}
		g.Edges = append(g.Edges, bracket)
		initV.OutEdges[0] = bracket.Index
		endV.InEdges[0] = bracket.Index
		d.SetterVertex, d.SetterPort = initV.Index, 0
		d.GetterVertex, d.GetterPort = endV.Index, 0
	}

	// Port-uniqueness invariant (ii, continued): every declared port must be
	// bound to exactly one edge.
	for _, v := range g.Vertices {
		for p, eix := range v.InEdges {
			if eix == NoIndex {
				return nil, fmt.Errorf("pisdf: graph %q vertex %q input port %d has no edge", b.name, v.Name, p)
			}
		}
		for p, eix := range v.OutEdges {
			if eix == NoIndex {
				return nil, fmt.Errorf("pisdf: graph %q vertex %q output port %d has no edge", b.name, v.Name, p)
			}
		}
	}

	for _, name := range b.inputInterfaces {
		g.InputInterfaces = append(g.InputInterfaces, vertexIx[name])
	}
	for _, name := range b.outputInterfaces {
		g.OutputInterfaces = append(g.OutputInterfaces, vertexIx[name])
	}

	if g.Parent != nil && g.ParentVertexIndex != NoIndex {
		parentVertex := g.Parent.Vertex(g.ParentVertexIndex)
		if parentVertex == nil {
			return nil, fmt.Errorf("pisdf: graph %q parent vertex index %d out of range", b.name, g.ParentVertexIndex)
		}
		if len(g.InputInterfaces) != len(parentVertex.InEdges) {
			return nil, fmt.Errorf("pisdf: graph %q has %d input interfaces, parent vertex %q has %d input edges", b.name, len(g.InputInterfaces), parentVertex.Name, len(parentVertex.InEdges))
		}
		if len(g.OutputInterfaces) != len(parentVertex.OutEdges) {
			return nil, fmt.Errorf("pisdf: graph %q has %d output interfaces, parent vertex %q has %d output edges", b.name, len(g.OutputInterfaces), parentVertex.Name, len(parentVertex.OutEdges))
		}
	}

	return g, nil
}
