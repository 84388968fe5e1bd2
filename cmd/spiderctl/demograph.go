package main

import "github.com/preesm/spider2-sub002/pisdf"

// Kernel ids the demo runner loop recognizes; any value not equal to
// configKernelID is treated as an ordinary kernel it can finish immediately.
const (
	configKernelID   = 100
	producerKernelID = 1
	consumerKernelID = 2
)

// demoDynamicTokens is the token count CFG reports for N once it fires.
const demoDynamicTokens = 4

// buildDemoGraph constructs the demonstration graph and returns CFG's vertex
// index alongside it, since pisdf.Graph exposes no lookup by name and the
// runner loop needs CFG's index to recognize its JOB_SENT_PARAM target.
func buildDemoGraph() (*pisdf.Graph, int, error) {
	g, err := pisdf.NewGraphBuilder("demo").
		AddVertex("CFG", pisdf.Config, 0, 0).
		AddDynamicParam("N").
		SetConfigOutputs("CFG", "N").
		SetRuntimeInfo("CFG", configKernelID, []int{0}, map[int]int64{0: 1}).
		AddVertex("PROD", pisdf.Normal, 0, 1).
		SetRuntimeInfo("PROD", producerKernelID, []int{0}, map[int]int64{0: 10}).
		AddVertex("CONS", pisdf.Normal, 1, 0).
		SetRuntimeInfo("CONS", consumerKernelID, []int{0}, map[int]int64{0: 10}).
		AddEdge("PROD", 0, []string{"N"}, "CONS", 0, []string{"N"}).
		Build()
	if err != nil {
		return nil, 0, err
	}
	configIx := -1
	for _, v := range g.Vertices {
		if v.Name == "CFG" {
			configIx = v.Index
			break
		}
	}
	return g, configIx, nil
}
