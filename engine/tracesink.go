package engine

import "github.com/preesm/spider2-sub002/scheduler"

// TraceSink is the Gantt/DOT export extension point. The actual XML/SVG/DOT
// writers live outside this module; TraceSink only gives the driver
// somewhere to call at iteration boundaries, an optional capability a
// caller may supply rather than a concrete exporter this package ships.
type TraceSink interface {
	// OnIterationEnd receives the final schedule of an iteration, in case a
	// caller wants to render a Gantt chart from it.
	OnIterationEnd(tasks []*scheduler.ListTask)
}

type noopTrace struct{}

func (noopTrace) OnIterationEnd([]*scheduler.ListTask) {}
