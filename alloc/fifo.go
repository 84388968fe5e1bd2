// Package alloc implements the FIFO memory allocator: it turns the firing
// handler's dependency iterators into address/offset/count descriptors for
// each scheduled task's input and output FIFOs, handling the FORK/
// DUPLICATE/EXTERN/merge special cases and the pending-list notifications
// for FIFOs whose consumer side resolves after allocation.
package alloc

import (
	"github.com/preesm/spider2-sub002/pisdf"
)

// Descriptor is one FIFO view: a virtual address plus an offset/size window
// into it, a reference count (how many reads remain before the memory can
// be freed), and an access-mode attribute tag.
type Descriptor struct {
	Address   int64
	Offset    int64
	Size      int64
	Count     int
	Attribute pisdf.FifoAttribute

	// Sub holds the constituent descriptors of an R_MERGE header; empty for
	// every other attribute.
	Sub []Descriptor
}

// Mode selects the allocator's sharing strategy.
type Mode int

const (
	// Default places regular output buffers in the GRT's cluster memory.
	// In every mode, FORK/DUPLICATE outputs are views over their input
	// buffer rather than fresh allocations.
	Default Mode = iota
	// DefaultNoSync behaves as Default in this allocator.
	DefaultNoSync
	// ArchiAware places buffers in the cluster memory closest to the
	// producer.
	ArchiAware
)
