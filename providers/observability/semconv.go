package observability

// Semantic conventions for observability attributes.
// These constants define standard attribute names to ensure consistency
// across different components of the system.

// --- Task Attributes ---

const (
	// AttrTaskVertex is the name of the actor being fired.
	AttrTaskVertex = "spider.task.vertex"

	// AttrTaskFiring is the firing index of the task within its repetition.
	AttrTaskFiring = "spider.task.firing"

	// AttrTaskLevel is the task's computed schedule level.
	AttrTaskLevel = "spider.task.level"

	// AttrTaskPE is the virtual index of the PE the task is mapped to.
	AttrTaskPE = "spider.task.pe"

	// AttrTaskCluster is the index of the cluster the task is mapped to.
	AttrTaskCluster = "spider.task.cluster"

	// AttrTaskState is the task's state-machine state.
	AttrTaskState = "spider.task.state"
)

// --- Timing Attributes ---

const (
	// AttrStartCycle is the cycle at which a task began executing.
	AttrStartCycle = "spider.task.start_cycle"

	// AttrEndCycle is the cycle at which a task finished executing.
	AttrEndCycle = "spider.task.end_cycle"

	// AttrExecTime is the estimated cost used for mapping, in cycles.
	AttrExecTime = "spider.task.exec_time"
)

// --- FIFO Attributes ---

const (
	// AttrFifoEdge is the dense edge index a FIFO descriptor was built for.
	AttrFifoEdge = "spider.fifo.edge"

	// AttrFifoSize is the FIFO's allocated size in bytes.
	AttrFifoSize = "spider.fifo.size"

	// AttrFifoAddress is the FIFO's address within its cluster's memory
	// interface.
	AttrFifoAddress = "spider.fifo.address"

	// AttrFifoAttribute is the FIFO descriptor's access-mode tag
	// (R_OWN, W_EXT, R_MERGE, ...).
	AttrFifoAttribute = "spider.fifo.attribute"
)

// --- Parameter Attributes ---

const (
	// AttrParamName is a resolved parameter's name.
	AttrParamName = "spider.param.name"

	// AttrParamValue is a resolved parameter's concrete value.
	AttrParamValue = "spider.param.value"
)

// --- General Attributes ---

const (
	// AttrError is the error message.
	AttrError = "error"

	// AttrErrorType is the error type/class.
	AttrErrorType = "error.type"

	// AttrDuration is the operation duration.
	AttrDuration = "duration"

	// AttrStatus is the operation status.
	AttrStatus = "status"

	// AttrStatusDescription is the optional human-readable status description.
	AttrStatusDescription = "status.description"
)

// --- Span Names ---

const (
	// SpanSchedule is the span name for a full list-scheduling pass.
	SpanSchedule = "scheduler.schedule"

	// SpanTaskExecution is the span name for one task's execution on a PE.
	SpanTaskExecution = "task.execution"

	// SpanAllocate is the span name for a FIFO allocation pass.
	SpanAllocate = "alloc.allocate"
)

// --- Event Names ---

const (
	// EventIterationStart marks the start of a runtime iteration.
	EventIterationStart = "engine.iteration.start"

	// EventIterationEnd marks the end of a runtime iteration.
	EventIterationEnd = "engine.iteration.end"

	// EventTaskScheduled marks a task being mapped to a PE.
	EventTaskScheduled = "scheduler.task.scheduled"

	// EventTaskSkipped marks a task being skipped by the scheduler.
	EventTaskSkipped = "scheduler.task.skipped"

	// EventParamResolved marks a dynamic parameter receiving its runtime
	// value.
	EventParamResolved = "firing.param.resolved"
)
