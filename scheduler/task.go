// Package scheduler implements the list scheduler: schedule-level
// computation over the firing dependency graph, descending-level ordering
// with a deterministic tie-break chain, and best-fit/round-robin mapping of
// ready tasks onto platform PEs.
package scheduler

import (
	"fmt"

	"github.com/preesm/spider2-sub002/firing"
)

// TaskState is the list-scheduler task state machine:
// NotSchedulable -> Pending -> Ready -> Running -> {Skipped|Finished}.
type TaskState int

const (
	NotSchedulable TaskState = iota
	Pending
	Ready
	Running
	Skipped
	Finished
)

func (s TaskState) String() string {
	switch s {
	case NotSchedulable:
		return "NOT_SCHEDULABLE"
	case Pending:
		return "PENDING"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Skipped:
		return "SKIPPED"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// TaskType distinguishes ordinary vertex firings from the synchronization
// tasks the launcher inserts across a cluster bus.
type TaskType int

const (
	VertexTask TaskType = iota
	SyncSendTask
	SyncReceiveTask
)

// TaskRef identifies a task by the handler that owns its vertex, the vertex
// index within that handler's graph, and the firing index. Handlers, not
// graphs, disambiguate identical vertex indices reused across sibling
// sub-graph instances. It is comparable and exported so the launcher can key
// its own execution-constraint and wait-index bookkeeping on it.
type TaskRef struct {
	Handler *firing.Handler
	Vertex  int
	Firing  int64
}

func (k TaskRef) String() string {
	return fmt.Sprintf("%p/v%d/f%d", k.Handler, k.Vertex, k.Firing)
}

// ListTask is one entry of the flattened, scheduled task list.
type ListTask struct {
	Handler *firing.Handler
	Vertex  int
	Firing  int64
	Type    TaskType

	State TaskState
	Level int64

	// ExecTime is the estimated cost used for level computation and
	// best-fit placement, fixed before mapping by the exec-time estimator
	// (DefaultExecTime takes the cheapest supported PE type).
	ExecTime int64

	// PE/Cluster are -1 until the mapping phase assigns this task.
	PE      int
	Cluster int

	StartCycle int64
	EndCycle   int64

	// Predecessors holds the resolved producer tasks this task depends on;
	// the scheduler reads them for readiness, start times and transfer cost, and the
	// launcher for exec constraints and notification flags.
	Predecessors []TaskRef
}

// Ref returns this task's identity, usable as a map key by the launcher.
func (t *ListTask) Ref() TaskRef { return TaskRef{Handler: t.Handler, Vertex: t.Vertex, Firing: t.Firing} }
