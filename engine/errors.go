package engine

import (
	"errors"
	"fmt"

	"github.com/preesm/spider2-sub002/alloc"
	"github.com/preesm/spider2-sub002/core/expr"
	"github.com/preesm/spider2-sub002/firing"
	"github.com/preesm/spider2-sub002/launcher"
	"github.com/preesm/spider2-sub002/pisdf/brv"
	"github.com/preesm/spider2-sub002/scheduler"
)

// Kind categorizes the fatal error conditions: the driver never
// catches these, only wraps and propagates them to the embedder.
type Kind int

const (
	// InvalidGraph covers build-time structural errors: port count
	// mismatch, duplicate parameter name, a setter on a persistent delay,
	// a cycle in the hierarchy.
	InvalidGraph Kind = iota
	// UnknownParameter is an expression referencing a name not in scope.
	UnknownParameter
	// NumericError is a NaN/Inf rate or a division by zero.
	NumericError
	// NullTopologyPivot is a BRV pivot failure on a non-degenerate component.
	NullTopologyPivot
	// NoMappablePE is an actor with no compatible PE on any cluster.
	NoMappablePE
	// Deadlock is a wave that completes with no ready task while unresolved
	// handlers remain.
	Deadlock
	// ProtocolViolation is an unexpected runner message.
	ProtocolViolation
	// AllocatorExhausted is an allocator unable to satisfy a FIFO request.
	AllocatorExhausted
)

func (k Kind) String() string {
	switch k {
	case InvalidGraph:
		return "InvalidGraph"
	case UnknownParameter:
		return "UnknownParameter"
	case NumericError:
		return "NumericError"
	case NullTopologyPivot:
		return "NullTopologyPivot"
	case NoMappablePE:
		return "NoMappablePE"
	case Deadlock:
		return "Deadlock"
	case ProtocolViolation:
		return "ProtocolViolation"
	case AllocatorExhausted:
		return "AllocatorExhausted"
	default:
		return "Unknown"
	}
}

// Error is the single error shape the driver hands to the embedder: a
// fatal-error category plus the vertex name it was raised against, if any.
type Error struct {
	Kind   Kind
	Vertex string
	Err    error
}

func (e *Error) Error() string {
	if e.Vertex == "" {
		return fmt.Sprintf("engine: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("engine: %s (vertex %q): %v", e.Kind, e.Vertex, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classify maps an error from one of the component packages to its kind,
// attaching a vertex name when one is known. A component error not
// recognized by any of the sentinels below still reaches the embedder,
// wrapped as the most applicable kind for the call site that produced it.
func classify(err error, vertex string, fallback Kind) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}
	kind := fallback
	switch {
	case errors.Is(err, expr.ErrUnknownParameter):
		kind = UnknownParameter
	case errors.Is(err, expr.ErrNumericError):
		kind = NumericError
	case errors.Is(err, brv.ErrNullTopologyPivot):
		kind = NullTopologyPivot
	case errors.Is(err, scheduler.ErrDeadlock):
		kind = Deadlock
	case errors.Is(err, scheduler.ErrNoMappablePE):
		kind = NoMappablePE
	case errors.Is(err, launcher.ErrProtocolViolation):
		kind = ProtocolViolation
	case errors.Is(err, alloc.ErrAllocatorExhausted):
		kind = AllocatorExhausted
	case errors.Is(err, firing.ErrAlreadyResolved):
		kind = InvalidGraph
	}
	return &Error{Kind: kind, Vertex: vertex, Err: err}
}
