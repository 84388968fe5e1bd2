package pisdf

import "testing"

func TestBuildSimpleProducerConsumer(t *testing.T) {
	g, err := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddVertex("B", Normal, 1, 0).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Vertices) != 2 || len(g.Edges) != 1 {
		t.Fatalf("got %d vertices, %d edges, want 2, 1", len(g.Vertices), len(g.Edges))
	}
	a, b := g.Vertices[0], g.Vertices[1]
	if a.Name != "A" || b.Name != "B" {
		t.Fatalf("unexpected vertex order: %v", g.Vertices)
	}
	if a.OutEdges[0] != 0 || b.InEdges[0] != 0 {
		t.Fatalf("edge back-references not wired correctly")
	}
}

func TestBuildDuplicateVertexName(t *testing.T) {
	_, err := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddVertex("A", Normal, 0, 1).
		Build()
	if err == nil {
		t.Fatalf("expected error for duplicate vertex name")
	}
}

func TestBuildUnboundPortIsInvalid(t *testing.T) {
	_, err := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddVertex("B", Normal, 2, 0).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"}).
		Build()
	if err == nil {
		t.Fatalf("expected error for vertex B input port 1 left unbound")
	}
}

func TestBuildPortAlreadyBound(t *testing.T) {
	_, err := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddVertex("B", Normal, 1, 0).
		AddVertex("C", Normal, 0, 1).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"}).
		AddEdge("C", 0, []string{"1"}, "B", 0, []string{"1"}).
		Build()
	if err == nil {
		t.Fatalf("expected error for port already bound to an edge")
	}
}

func TestBuildDuplicateParamName(t *testing.T) {
	_, err := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddStaticParam("p", []string{"1"}).
		AddStaticParam("p", []string{"2"}).
		AddVertex("B", Normal, 1, 0).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"}).
		Build()
	if err == nil {
		t.Fatalf("expected error for duplicate parameter name")
	}
}

func TestBuildPersistentDelayRejectsSetterGetter(t *testing.T) {
	builder := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddVertex("B", Normal, 1, 0).
		AddVertex("S", Normal, 0, 1).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"})
	builder.AddDelay("A", 0, "B", 0, []string{"2"}, true, "S", 0, "", 0)
	if _, err := builder.Build(); err == nil {
		t.Fatalf("expected error for persistent delay with a setter")
	}
}

func TestBuildPersistentDelayWithStaticValue(t *testing.T) {
	g, err := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddVertex("B", Normal, 1, 0).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"}).
		AddDelay("A", 0, "B", 0, []string{"2"}, true, "", 0, "", 0).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := g.Edges[0]
	if e.Delay == nil {
		t.Fatalf("expected delay to be attached")
	}
	val, err := e.Delay.ValueExpr.Eval(nil)
	if err != nil || val != 2 {
		t.Fatalf("delay value = %v, err %v, want 2", val, err)
	}
}

func TestBuildNonPersistentDelayInsertsInitEndBracket(t *testing.T) {
	g, err := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddVertex("B", Normal, 1, 0).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"}).
		AddDelay("A", 0, "B", 0, []string{"2"}, false, "", 0, "", 0).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := g.Edges[0].Delay
	if d == nil || d.SetterVertex == NoIndex || d.GetterVertex == NoIndex {
		t.Fatalf("expected implicit setter/getter on delay, got %+v", d)
	}
	if g.Vertices[d.SetterVertex].Subtype != Init {
		t.Fatalf("setter subtype = %v, want INIT", g.Vertices[d.SetterVertex].Subtype)
	}
	if g.Vertices[d.GetterVertex].Subtype != End {
		t.Fatalf("getter subtype = %v, want END", g.Vertices[d.GetterVertex].Subtype)
	}
	bracket := g.Edges[g.Vertices[d.SetterVertex].OutEdges[0]]
	if bracket.SinkVertex != d.GetterVertex {
		t.Fatalf("bracket edge does not connect INIT to END: %+v", bracket)
	}
	rate, err := bracket.SourceRate.Eval(nil)
	if err != nil || rate != 2 {
		t.Fatalf("bracket rate = %v, err %v, want 2", rate, err)
	}
}

func TestBuildInheritedParamRequiresParent(t *testing.T) {
	_, err := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddInheritedParam("q", "p").
		AddVertex("B", Normal, 1, 0).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"}).
		Build()
	if err == nil {
		t.Fatalf("expected error for inherited param with no parent graph")
	}
}

func TestBuildInputInterfaceCountMismatch(t *testing.T) {
	parent, err := NewGraphBuilder("parent").
		AddVertex("SRC", Normal, 0, 1).
		AddVertex("SG", GraphActor, 1, 0).
		AddEdge("SRC", 0, []string{"1"}, "SG", 0, []string{"1"}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error building parent: %v", err)
	}

	_, err = NewSubGraphBuilder("child", parent, 1).
		AddVertex("SINK", Normal, 0, 0).
		Build()
	if err == nil {
		t.Fatalf("expected error: child declares 0 input interfaces but parent vertex has 1 input edge")
	}
}

func TestSetConfigOutputsResolvesParamIndex(t *testing.T) {
	g, err := NewGraphBuilder("top").
		AddVertex("CFG", Config, 0, 0).
		AddDynamicParam("N").
		SetConfigOutputs("CFG", "N").
		AddVertex("A", Normal, 0, 1).
		AddVertex("B", Normal, 1, 0).
		AddEdge("A", 0, []string{"N"}, "B", 0, []string{"N"}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := g.ParamByName("N")
	if !ok {
		t.Fatalf("expected param N to exist")
	}
	cfg := g.Vertices[0]
	if len(cfg.OutParams) != 1 || cfg.OutParams[0] != p.Index {
		t.Fatalf("CFG.OutParams = %v, want [%d]", cfg.OutParams, p.Index)
	}
}

func TestSetConfigOutputsOnNonConfigVertexFails(t *testing.T) {
	_, err := NewGraphBuilder("top").
		AddVertex("A", Normal, 0, 1).
		AddDynamicParam("N").
		SetConfigOutputs("A", "N").
		AddVertex("B", Normal, 1, 0).
		AddEdge("A", 0, []string{"N"}, "B", 0, []string{"N"}).
		Build()
	if err == nil {
		t.Fatalf("expected error: SetConfigOutputs on a non-CONFIG vertex")
	}
}

func TestSetParamInputsResolvesParamIndex(t *testing.T) {
	g, err := NewGraphBuilder("top").
		AddStaticParam("k", []string{"3"}).
		AddVertex("A", Normal, 0, 1).
		SetParamInputs("A", "k").
		AddVertex("B", Normal, 1, 0).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := g.ParamByName("k")
	if !ok {
		t.Fatalf("expected param k to exist")
	}
	a := g.Vertices[0]
	if len(a.InParams) != 1 || a.InParams[0] != p.Index {
		t.Fatalf("A.InParams = %v, want [%d]", a.InParams, p.Index)
	}
}
