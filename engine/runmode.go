package engine

// RunModeKind selects how Run drives iterations.
type RunModeKind int

const (
	// Infinite loops until Quit sets the stop flag, polled at iteration
	// boundaries; in-flight tasks always complete.
	Infinite RunModeKind = iota
	// Loop runs a fixed number of iterations.
	Loop
	// ExternLoop runs exactly one iteration per Run call, letting the
	// embedder drive the pace externally.
	ExternLoop
)

// RunMode pairs a RunModeKind with the iteration count LOOP needs.
type RunMode struct {
	Kind  RunModeKind
	Count uint64
}

// InfiniteMode loops until Quit is called.
func InfiniteMode() RunMode { return RunMode{Kind: Infinite} }

// LoopMode runs exactly count iterations.
func LoopMode(count uint64) RunMode { return RunMode{Kind: Loop, Count: count} }

// ExternLoopMode runs one iteration per Run call.
func ExternLoopMode() RunMode { return RunMode{Kind: ExternLoop} }
