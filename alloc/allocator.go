package alloc

import (
	"context"
	"errors"
	"fmt"

	"github.com/preesm/spider2-sub002/firing"
	"github.com/preesm/spider2-sub002/pisdf"
	"github.com/preesm/spider2-sub002/platform"
	"github.com/preesm/spider2-sub002/scheduler"
	"github.com/preesm/spider2-sub002/store"
)

// ErrAllocatorExhausted is returned when a cluster's memory interface has no
// room left for a requested FIFO. A zero-sized MemoryInterface (the test
// default) means unbounded, matching platform descriptors that omit it.
var ErrAllocatorExhausted = errors.New("alloc: cluster memory exhausted")

// outputKey identifies one producer task's output port, the unit an
// allocated Descriptor is cached under for later input-FIFO lookups.
type outputKey struct {
	h      *firing.Handler
	vertex int
	firing int64
	port   int
}

// PendingEntry records a FIFO whose consumer side could not be counted yet
// because it lives under an unresolved sub-handler; ResolvePending replays
// these once that handler resolves.
type PendingEntry struct {
	Key       outputKey
	EdgeIndex int
	Firing    int64
	Cluster   int
}

// Notification is one message the allocator emits to a runner after
// resolving a pending FIFO.
type Notification struct {
	Kind    NotificationKind
	Cluster int
	Address int64
	Count   int
}

// NotificationKind distinguishes the two late-resolution notifications.
type NotificationKind int

const (
	MemUpdateAddr NotificationKind = iota
	MemUpdateCount
)

// Allocator is the per-iteration FIFO allocator: a monotonically increasing
// virtual-address cursor per cluster, a cache of already-allocated output
// descriptors, and the pending list for FIFOs awaiting a consumer count.
type Allocator struct {
	plat  *platform.Platform
	mode  Mode
	store store.Store

	cursor      map[int]int64 // per-cluster next free virtual address
	reservedEnd map[int]int64 // per-cluster end of the persistent-delay region
	outputs     map[outputKey]Descriptor
	// inputs caches FORK/DUPLICATE input views so their output builders can
	// sub-view or clone the parent buffer instead of allocating fresh memory.
	inputs       map[outputKey]Descriptor
	pending      []PendingEntry
	externBuffer map[pisdf.FifoAttribute]int64 // fixed external buffer addresses, by role
}

// New creates an allocator over plat, backed by s for persistent-delay
// storage (pass store.NewInMemory() for the common case).
func New(plat *platform.Platform, s store.Store, mode Mode) *Allocator {
	return &Allocator{
		plat:        plat,
		mode:        mode,
		store:       s,
		cursor:      make(map[int]int64),
		reservedEnd: make(map[int]int64),
		outputs:     make(map[outputKey]Descriptor),
		inputs:      make(map[outputKey]Descriptor),
	}
}

func (a *Allocator) alloc(cluster int, size int64) (int64, error) {
	addr := a.cursor[cluster]
	if addr < a.reservedEnd[cluster] {
		addr = a.reservedEnd[cluster]
	}
	if limit := a.clusterLimit(cluster); limit > 0 && addr+size > limit {
		return 0, fmt.Errorf("alloc: cluster %d: %w", cluster, ErrAllocatorExhausted)
	}
	a.cursor[cluster] = addr + size
	return addr, nil
}

func (a *Allocator) clusterLimit(cluster int) int64 {
	if a.plat == nil || cluster < 0 || cluster >= len(a.plat.Clusters) {
		return 0
	}
	return a.plat.Clusters[cluster].MemoryInterface.Size
}

// ReservePersistentDelay carves out a fixed, zero-initialized slice of the
// cluster's reserved region for a persistent delay, via the configured
// store.Store, and advances the reserved-region boundary so ordinary
// allocations never land inside it.
func (a *Allocator) ReservePersistentDelay(ctx context.Context, cluster int, key store.Key, size int64) (int64, error) {
	if err := a.store.Reserve(ctx, key, int(size)); err != nil {
		return 0, fmt.Errorf("alloc: reserve persistent delay %s: %w", key, err)
	}
	addr := a.reservedEnd[cluster]
	a.reservedEnd[cluster] = addr + size
	if a.cursor[cluster] < a.reservedEnd[cluster] {
		a.cursor[cluster] = a.reservedEnd[cluster]
	}
	return addr, nil
}

// Clear resets every cluster's cursor back to the end of its reserved
// (persistent-delay) region, discarding all non-persistent allocations and
// the output-descriptor cache built during the iteration.
func (a *Allocator) Clear() {
	for c, end := range a.reservedEnd {
		a.cursor[c] = end
	}
	a.outputs = make(map[outputKey]Descriptor)
	a.inputs = make(map[outputKey]Descriptor)
	a.pending = nil
}

// BuildOutputFIFOs allocates (or, for FORK/DUPLICATE, views over the input
// buffer) the output descriptors for one scheduled task, caching them for lookup by
// BuildInputFIFOs on the consumer side.
func (a *Allocator) BuildOutputFIFOs(t *scheduler.ListTask) ([]Descriptor, error) {
	v := t.Handler.Graph.Vertex(t.Vertex)
	descs := make([]Descriptor, 0, len(v.OutEdges))

	for port, edgeIx := range v.OutEdges {
		e := t.Handler.Graph.Edge(edgeIx)
		srcRate, err := t.Handler.GetRate(e, true)
		if err != nil {
			return nil, err
		}

		var d Descriptor
		switch v.Subtype {
		case pisdf.Fork:
			d, err = a.buildForkOutput(t, v, port, srcRate)
		case pisdf.Duplicate:
			d, err = a.buildDuplicateOutput(t, edgeIx, srcRate)
		case pisdf.ExternIn:
			d = Descriptor{Address: a.externBufferFor(pisdf.RWExt), Size: srcRate, Attribute: pisdf.RWExt}
		case pisdf.ExternOut:
			d = Descriptor{Address: a.externBufferFor(pisdf.RWExt), Size: srcRate, Attribute: pisdf.RWExt}
		default:
			d, err = a.buildRegularOutput(t, edgeIx, srcRate)
		}
		if err != nil {
			return nil, err
		}

		a.outputs[outputKey{h: t.Handler, vertex: t.Vertex, firing: t.Firing, port: port}] = d
		descs = append(descs, d)
	}
	return descs, nil
}

func (a *Allocator) buildForkOutput(t *scheduler.ListTask, v *pisdf.Vertex, port int, rate int64) (Descriptor, error) {
	if len(v.InEdges) == 0 {
		return Descriptor{}, fmt.Errorf("alloc: FORK vertex %q has no input edge", v.Name)
	}
	in, ok := a.inputs[outputKey{h: t.Handler, vertex: v.Index, firing: t.Firing, port: 0}]
	if !ok {
		return Descriptor{}, fmt.Errorf("alloc: FORK vertex %q: input view not yet allocated", v.Name)
	}
	var offset int64
	for p := 0; p < port; p++ {
		outEdge := t.Handler.Graph.Edge(v.OutEdges[p])
		r, err := t.Handler.GetRate(outEdge, true)
		if err != nil {
			return Descriptor{}, err
		}
		offset += r
	}
	count, err := t.Handler.CountConsumptionDependencies(v.OutEdges[port], t.Firing)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Address: in.Address, Offset: in.Offset + offset, Size: rate, Count: count, Attribute: pisdf.RWOnly}, nil
}

func (a *Allocator) buildDuplicateOutput(t *scheduler.ListTask, edgeIx int, rate int64) (Descriptor, error) {
	v := t.Handler.Graph.Vertex(t.Handler.Graph.Edge(edgeIx).SourceVertex)
	in, ok := a.inputs[outputKey{h: t.Handler, vertex: v.Index, firing: t.Firing, port: 0}]
	if !ok {
		return Descriptor{}, fmt.Errorf("alloc: DUPLICATE vertex %q: input view not yet allocated", v.Name)
	}
	count, err := t.Handler.CountConsumptionDependencies(edgeIx, t.Firing)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Address: in.Address, Offset: in.Offset, Size: rate, Count: count, Attribute: pisdf.RWOnly}, nil
}

func (a *Allocator) buildRegularOutput(t *scheduler.ListTask, edgeIx int, rate int64) (Descriptor, error) {
	count, err := t.Handler.CountConsumptionDependencies(edgeIx, t.Firing)
	if err != nil {
		return Descriptor{}, err
	}
	cluster := a.targetCluster(t)
	addr, err := a.alloc(cluster, rate)
	if err != nil {
		return Descriptor{}, err
	}
	attr := pisdf.WOwn
	if count == 0 {
		attr = pisdf.WSink
		if unresolved, uerr := t.Handler.HasUnresolvedConsumptionDependency(edgeIx, t.Firing); uerr == nil && unresolved {
			a.pending = append(a.pending, PendingEntry{
				Key:       outputKey{h: t.Handler, vertex: t.Vertex, firing: t.Firing, port: t.Handler.Graph.Edge(edgeIx).SourcePort},
				EdgeIndex: edgeIx,
				Firing:    t.Firing,
				Cluster:   cluster,
			})
		}
	}
	return Descriptor{Address: addr, Size: rate, Count: count, Attribute: attr}, nil
}

// targetCluster picks the memory interface a fresh buffer lands in: the
// producer's own cluster in ArchiAware mode, the GRT cluster otherwise.
func (a *Allocator) targetCluster(t *scheduler.ListTask) int {
	if a.mode == ArchiAware && t.Cluster >= 0 {
		return t.Cluster
	}
	if a.plat != nil {
		if c, _, ok := a.plat.GRT(); ok {
			return c
		}
	}
	return 0
}

// externBufferFor returns the fixed virtual address standing in for the
// external buffer of the given role, allocating one lazily on first use.
func (a *Allocator) externBufferFor(attr pisdf.FifoAttribute) int64 {
	if a.externBuffer == nil {
		a.externBuffer = make(map[pisdf.FifoAttribute]int64)
	}
	if addr, ok := a.externBuffer[attr]; ok {
		return addr
	}
	addr := int64(len(a.externBuffer))
	a.externBuffer[attr] = addr
	return addr
}

// firingWindow is one producer firing's contribution to a consumer's input,
// after a (possibly multi-firing) Dependency has been split into one window
// per covered producer firing — since this allocator gives every firing of
// a vertex its own independently addressed buffer, a dependency spanning several firings can't be served
// by a single contiguous descriptor and must be decomposed like this.
type firingWindow struct {
	handler *firing.Handler
	vertex  int
	firing  int64
	port    int
	lo, hi  int64
}

func expandDependency(owner *firing.Handler, d firing.Dependency) ([]firingWindow, error) {
	if d.Unresolved || d.TargetVertex == pisdf.NoIndex {
		return nil, nil
	}
	if d.FiringStart == d.FiringEnd {
		return []firingWindow{{handler: owner, vertex: d.TargetVertex, firing: d.FiringStart, port: d.SourcePort, lo: d.MemStart, hi: d.MemEnd}}, nil
	}
	srcV := owner.Graph.Vertex(d.TargetVertex)
	srcEdge := owner.Graph.Edge(srcV.OutEdges[d.SourcePort])
	rate, err := owner.GetRate(srcEdge, true)
	if err != nil {
		return nil, err
	}
	windows := make([]firingWindow, 0, d.FiringEnd-d.FiringStart+1)
	for k := d.FiringStart; k <= d.FiringEnd; k++ {
		lo, hi := int64(0), rate-1
		if k == d.FiringStart {
			lo = d.MemStart
		}
		if k == d.FiringEnd {
			hi = d.MemEnd
		}
		windows = append(windows, firingWindow{handler: owner, vertex: d.TargetVertex, firing: k, port: d.SourcePort, lo: lo, hi: hi})
	}
	return windows, nil
}

func (a *Allocator) descriptorFor(w firingWindow) (Descriptor, error) {
	src, ok := a.outputs[outputKey{h: w.handler, vertex: w.vertex, firing: w.firing, port: w.port}]
	if !ok {
		return Descriptor{}, fmt.Errorf("alloc: producer output (vertex %d firing %d) not yet allocated", w.vertex, w.firing)
	}
	return Descriptor{
		Address:   src.Address,
		Offset:    src.Offset + w.lo,
		Size:      w.hi - w.lo + 1,
		Attribute: pisdf.RWOwn,
	}, nil
}

// BuildInputFIFOs constructs the input descriptors for task t by walking
// the execution-dependency iterator over each of its sink edges.
func (a *Allocator) BuildInputFIFOs(t *scheduler.ListTask) ([]Descriptor, error) {
	v := t.Handler.Graph.Vertex(t.Vertex)
	descs := make([]Descriptor, 0, len(v.InEdges))

	for port, edgeIx := range v.InEdges {
		e := t.Handler.Graph.Edge(edgeIx)
		snkRate, err := t.Handler.GetRate(e, false)
		if err != nil {
			return nil, err
		}
		deps, err := t.Handler.CollectExecutionDependencies(edgeIx, t.Firing)
		if err != nil {
			return nil, err
		}

		var windows []firingWindow
		for _, d := range deps {
			owner := owningHandler(d, t.Handler)
			ws, err := expandDependency(owner, d)
			if err != nil {
				return nil, err
			}
			windows = append(windows, ws...)
		}

		var desc Descriptor
		switch {
		case len(windows) == 0:
			// Rate-0 or delay-only input: nothing to read from a producer.
			desc = Descriptor{Attribute: pisdf.Dummy}
		case len(windows) == 1:
			desc, err = a.descriptorFor(windows[0])
			if err != nil {
				return nil, err
			}
		default:
			addr, aerr := a.alloc(a.targetCluster(t), snkRate)
			if aerr != nil {
				return nil, aerr
			}
			desc = Descriptor{Address: addr, Size: snkRate, Attribute: pisdf.RMerge}
			for _, w := range windows {
				d, derr := a.descriptorFor(w)
				if derr != nil {
					return nil, derr
				}
				desc.Sub = append(desc.Sub, d)
			}
		}

		if v.Subtype == pisdf.Fork || v.Subtype == pisdf.Duplicate {
			a.inputs[outputKey{h: t.Handler, vertex: t.Vertex, firing: t.Firing, port: port}] = desc
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

func owningHandler(d firing.Dependency, fallback *firing.Handler) *firing.Handler {
	if d.TargetHandler != nil {
		return d.TargetHandler
	}
	return fallback
}

// ResolvePending walks the pending list and returns the notifications due
// to runners whose FIFO's consumer side has since resolved, removing those
// entries from the list.
func (a *Allocator) ResolvePending(h *firing.Handler) ([]Notification, error) {
	var notes []Notification
	remaining := a.pending[:0]
	for _, p := range a.pending {
		unresolved, err := h.HasUnresolvedConsumptionDependency(p.EdgeIndex, p.Firing)
		if err != nil {
			return nil, err
		}
		if unresolved {
			remaining = append(remaining, p)
			continue
		}
		count, err := h.CountConsumptionDependencies(p.EdgeIndex, p.Firing)
		if err != nil {
			return nil, err
		}
		out := a.outputs[p.Key]
		out.Count = count
		a.outputs[p.Key] = out
		notes = append(notes,
			Notification{Kind: MemUpdateAddr, Cluster: p.Cluster, Address: out.Address},
			Notification{Kind: MemUpdateCount, Cluster: p.Cluster, Count: count - 1},
		)
	}
	a.pending = remaining
	return notes, nil
}
