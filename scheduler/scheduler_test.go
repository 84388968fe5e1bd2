package scheduler

import (
	"testing"

	"github.com/preesm/spider2-sub002/firing"
	"github.com/preesm/spider2-sub002/pisdf"
	"github.com/preesm/spider2-sub002/platform"
)

func singleClusterPlatform(peCount int) *platform.Platform {
	pes := make([]platform.PE, peCount)
	for i := range pes {
		pes[i] = platform.PE{VirtualIndex: i, Enabled: true, IsGRT: i == 0}
	}
	return &platform.Platform{
		Clusters: []platform.Cluster{{Index: 0, PEs: pes}},
	}
}

func buildChain(t *testing.T) *pisdf.Graph {
	t.Helper()
	g, err := pisdf.NewGraphBuilder("top").
		AddVertex("A", pisdf.Normal, 0, 1).
		AddVertex("B", pisdf.Normal, 1, 1).
		AddVertex("C", pisdf.Normal, 1, 0).
		AddEdge("A", 0, []string{"1"}, "B", 0, []string{"1"}).
		AddEdge("B", 0, []string{"1"}, "C", 0, []string{"1"}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func TestBuildTaskListLevelsRespectChainOrder(t *testing.T) {
	g := buildChain(t)
	h := firing.NewRootHandler(g)
	if err := h.EvaluateStaticAndDependantParams(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks, err := BuildTaskList(h, DefaultExecTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}

	levelOf := func(name string) int64 {
		for _, tk := range tasks {
			if tk.Handler.Graph.Vertex(tk.Vertex).Name == name {
				return tk.Level
			}
		}
		t.Fatalf("no task for vertex %q", name)
		return -1
	}
	if levelOf("C") != 0 {
		t.Fatalf("level(C) = %d, want 0", levelOf("C"))
	}
	if levelOf("B") <= levelOf("C") {
		t.Fatalf("level(B)=%d should exceed level(C)=%d", levelOf("B"), levelOf("C"))
	}
	if levelOf("A") <= levelOf("B") {
		t.Fatalf("level(A)=%d should exceed level(B)=%d", levelOf("A"), levelOf("B"))
	}
}

func TestSortDescendingLevelOrdersHighestFirst(t *testing.T) {
	g := buildChain(t)
	h := firing.NewRootHandler(g)
	if err := h.EvaluateStaticAndDependantParams(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tasks, err := BuildTaskList(h, DefaultExecTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	SortDescendingLevel(tasks)
	for i := 1; i < len(tasks); i++ {
		if tasks[i-1].Level < tasks[i].Level {
			t.Fatalf("tasks not sorted descending by level: %d before %d", tasks[i-1].Level, tasks[i].Level)
		}
	}
	if tasks[0].Handler.Graph.Vertex(tasks[0].Vertex).Name != "A" {
		t.Fatalf("expected A (highest level, furthest from sink) first, got %q", tasks[0].Handler.Graph.Vertex(tasks[0].Vertex).Name)
	}
}

func TestScheduleBestFitMapsChainInOrder(t *testing.T) {
	g := buildChain(t)
	h := firing.NewRootHandler(g)
	if err := h.EvaluateStaticAndDependantParams(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plat := singleClusterPlatform(2)

	res, err := Schedule(h, plat, BestFit{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.LastScheduled != len(res.Tasks)-1 {
		t.Fatalf("expected every task scheduled, LastScheduled=%d of %d", res.LastScheduled, len(res.Tasks))
	}

	byName := map[string]*ListTask{}
	for _, tk := range res.Tasks {
		byName[tk.Handler.Graph.Vertex(tk.Vertex).Name] = tk
	}
	if byName["A"].StartCycle > byName["B"].StartCycle {
		t.Fatalf("A should start at or before B")
	}
	if byName["B"].EndCycle > byName["C"].StartCycle {
		t.Fatalf("C must not start before B finishes: B ends %d, C starts %d", byName["B"].EndCycle, byName["C"].StartCycle)
	}
}

func TestScheduleNoMappablePE(t *testing.T) {
	g := buildChain(t)
	h := firing.NewRootHandler(g)
	if err := h.EvaluateStaticAndDependantParams(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plat := &platform.Platform{Clusters: []platform.Cluster{{Index: 0, PEs: nil}}}

	_, err := Schedule(h, plat, BestFit{})
	if err == nil {
		t.Fatalf("expected ErrNoMappablePE")
	}
}

func TestRoundRobinCyclesAcrossPEs(t *testing.T) {
	g := buildChain(t)
	h := firing.NewRootHandler(g)
	if err := h.EvaluateStaticAndDependantParams(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plat := singleClusterPlatform(3)

	res, err := Schedule(h, plat, NewRoundRobin(plat))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[int]bool{}
	for _, tk := range res.Tasks {
		seen[tk.PE] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected round robin to spread tasks across PEs, used %d distinct PEs", len(seen))
	}
}
