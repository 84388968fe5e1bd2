// Package platform describes the static heterogeneous target: clusters of
// processing elements, their memory interfaces, and the inter-cluster
// buses connecting them.
package platform

import "fmt"

// AllocatorPolicy records how a cluster's memory interface hands out FIFO
// addresses within its reserved region. The alloc package does not read it:
// every cluster is served by a forward-bumping cursor whatever its policy.
type AllocatorPolicy int

const (
	// Linear bumps a cursor forward and never reuses freed space within an
	// iteration; simplest, matches the engine's default FIFO allocator mode.
	Linear AllocatorPolicy = iota
	// FIFOPolicy names the stack-like discipline of reclaiming freed regions
	// in allocation order. The allocator treats it like Linear: freed regions
	// are not reclaimed.
	FIFOPolicy
)

// PEType identifies a class of processing element a kernel can target.
type PEType int

// PE is one processing element within a cluster.
type PE struct {
	VirtualIndex int
	Type         PEType
	Enabled      bool
	// IsGRT marks the single PE in the system that also drives scheduling.
	IsGRT bool
}

// MemoryInterface is the address space backing a cluster's FIFOs.
type MemoryInterface struct {
	Size            int64
	AllocatorPolicy AllocatorPolicy
}

// Cluster groups PEs sharing one memory interface.
type Cluster struct {
	Index           int
	PEs             []PE
	MemoryInterface MemoryInterface
}

// Bus describes an inter-cluster memory link used for SYNC_SEND/SYNC_RECEIVE
// task pairs.
type Bus struct {
	SrcCluster   int
	DstCluster   int
	ReadSpeed    float64 // bytes per cycle
	WriteSpeed   float64 // bytes per cycle
	SendKernelID int
	RecvKernelID int
}

// Platform is the full static target description.
type Platform struct {
	Clusters []Cluster
	Buses    []Bus
}

// GRT returns the virtual index of the single GRT PE and its cluster index.
func (p *Platform) GRT() (clusterIx, peVirtualIx int, ok bool) {
	for ci, c := range p.Clusters {
		for _, pe := range c.PEs {
			if pe.IsGRT {
				return ci, pe.VirtualIndex, true
			}
		}
	}
	return 0, 0, false
}

// ClusterOf returns the cluster index owning the PE with the given virtual
// index, or false if no PE has that index; disabled PEs are matched too.
func (p *Platform) ClusterOf(peVirtualIx int) (int, bool) {
	for ci, c := range p.Clusters {
		for _, pe := range c.PEs {
			if pe.VirtualIndex == peVirtualIx {
				return ci, true
			}
		}
	}
	return 0, false
}

// Bus looks up the bus connecting src to dst clusters, if any.
func (p *Platform) Bus(src, dst int) (Bus, bool) {
	for _, b := range p.Buses {
		if b.SrcCluster == src && b.DstCluster == dst {
			return b, true
		}
	}
	return Bus{}, false
}

// Validate enforces the single-GRT invariant and that every bus references
// existing clusters.
func (p *Platform) Validate() error {
	grtCount := 0
	for _, c := range p.Clusters {
		for _, pe := range c.PEs {
			if pe.IsGRT {
				grtCount++
			}
		}
	}
	if grtCount != 1 {
		return fmt.Errorf("platform: expected exactly one GRT PE, found %d", grtCount)
	}
	for _, b := range p.Buses {
		if b.SrcCluster < 0 || b.SrcCluster >= len(p.Clusters) || b.DstCluster < 0 || b.DstCluster >= len(p.Clusters) {
			return fmt.Errorf("platform: bus references out-of-range cluster (%d -> %d)", b.SrcCluster, b.DstCluster)
		}
	}
	return nil
}
