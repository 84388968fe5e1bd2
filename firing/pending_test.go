package firing

import (
	"testing"

	"github.com/preesm/spider2-sub002/pisdf"
)

func buildOneConfigGraph(t *testing.T) (*pisdf.Graph, int) {
	t.Helper()
	g, err := pisdf.NewGraphBuilder("top").
		AddVertex("cfg", pisdf.Config, 0, 0).
		AddDynamicParam("n").
		SetConfigOutputs("cfg", "n").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g, g.Vertices[0].Index
}

func TestPendingConfigActorsReportsUnresolvedConfig(t *testing.T) {
	g, cfgIx := buildOneConfigGraph(t)
	h := NewRootHandler(g)

	pending := PendingConfigActors(h)
	if len(pending) != 1 {
		t.Fatalf("got %d pending config actors, want 1", len(pending))
	}
	if pending[0].Handler != h || pending[0].VertexIx != cfgIx {
		t.Fatalf("unexpected pending entry: %+v", pending[0])
	}
}

func TestPendingConfigActorsEmptyOnceResolved(t *testing.T) {
	g, _ := buildOneConfigGraph(t)
	h := NewRootHandler(g)
	p, _ := g.ParamByName("n")

	if err := h.SetParamValue(p.Index, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending := PendingConfigActors(h); len(pending) != 0 {
		t.Fatalf("got %d pending config actors after resolution, want 0", len(pending))
	}
}

func TestPendingConfigActorsWithNoOutputsIsAlwaysResolved(t *testing.T) {
	g, err := pisdf.NewGraphBuilder("top").
		AddVertex("cfg", pisdf.Config, 0, 0).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := NewRootHandler(g)
	if pending := PendingConfigActors(h); len(pending) != 0 {
		t.Fatalf("got %d pending config actors for a config with no declared outputs, want 0", len(pending))
	}
}
