package launcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/preesm/spider2-sub002/alloc"
	"github.com/preesm/spider2-sub002/firing"
	"github.com/preesm/spider2-sub002/pisdf"
	"github.com/preesm/spider2-sub002/platform"
	"github.com/preesm/spider2-sub002/providers/observability"
	"github.com/preesm/spider2-sub002/scheduler"
)

// ErrProtocolViolation is returned by AwaitParams when a message other than
// JOB_SENT_PARAM arrives on the feedback channel while the engine is
// blocked waiting on pending configuration actors.
var ErrProtocolViolation = errors.New("launcher: unexpected message during parameter wait")

// Queue is one LRT's lossless FIFO inbox. The production runner that reads
// from it lives outside this module; this channel-backed queue is the in-process
// default, sufficient for single-binary deployments and tests.
type Queue struct {
	ch chan Message
}

// NewQueue creates a queue with the given buffer capacity.
func NewQueue(buffer int) *Queue { return &Queue{ch: make(chan Message, buffer)} }

// Push enqueues a message, blocking if the queue is full.
func (q *Queue) Push(m Message) { q.ch <- m }

// C exposes the receive side for a runner loop to range over.
func (q *Queue) C() <-chan Message { return q.ch }

type dispatchInfo struct {
	lrt       int
	execIndex int64
}

// syncPair is a deferred SYNC_SEND/SYNC_RECEIVE obligation queued against
// the consumer task whose launch should trigger it.
type syncPair struct {
	bus                    platform.Bus
	srcCluster, dstCluster int
	size                   int64
}

// Launcher builds and dispatches JobMessages for a scheduled task list: it
// assigns per-LRT exec indices, derives execution constraints and
// notification flags, chains deferred SYNC_SEND/SYNC_RECEIVE pairs
// against their observed successor, and runs the CONFIG parameter-feedback
// channel.
type Launcher struct {
	plat *platform.Platform
	obs  observability.Provider

	queues      map[int]*Queue
	execCounter map[int]int64
	dispatched  map[scheduler.TaskRef]dispatchInfo

	jobs []JobMessage

	pendingSync map[scheduler.TaskRef][]syncPair

	feedback chan RunnerMessage
}

// NewLauncher creates a launcher with one queue per enabled PE in plat. obs
// may be nil to disable observability, mirroring the rest of the module.
func NewLauncher(plat *platform.Platform, obs observability.Provider) *Launcher {
	l := &Launcher{
		plat:        plat,
		obs:         obs,
		queues:      make(map[int]*Queue),
		execCounter: make(map[int]int64),
		dispatched:  make(map[scheduler.TaskRef]dispatchInfo),
		pendingSync: make(map[scheduler.TaskRef][]syncPair),
		feedback:    make(chan RunnerMessage, 64),
	}
	for _, c := range plat.Clusters {
		for _, pe := range c.PEs {
			if pe.Enabled {
				l.queues[pe.VirtualIndex] = NewQueue(256)
			}
		}
	}
	return l
}

// Queue returns the runner queue for the given LRT (PE virtual index).
func (l *Launcher) Queue(lrt int) (*Queue, bool) {
	q, ok := l.queues[lrt]
	return q, ok
}

// Feedback returns the send side of the channel runners push
// JOB_SENT_PARAM/FINISHED_TASK messages onto.
func (l *Launcher) Feedback() chan<- RunnerMessage { return l.feedback }

// Jobs returns every JobMessage built so far, indexed like the JobIndex
// carried by JobAdd messages.
func (l *Launcher) Jobs() []JobMessage { return l.jobs }

// LaunchWave builds and pushes job messages for every Ready task in res, in
// list order. Schedule already guarantees that order respects producer-
// before-consumer dependencies, so by the time a task is reached every
// predecessor it references has already been dispatched.
func (l *Launcher) LaunchWave(res *scheduler.Result, a *alloc.Allocator) ([]JobMessage, error) {
	successors := successorsOf(res.Tasks)
	var built []JobMessage
	for _, t := range res.Tasks {
		if t.State != scheduler.Ready {
			continue
		}
		if _, already := l.dispatched[t.Ref()]; already {
			continue
		}
		l.flushPendingSync(t)

		// Inputs first: a FORK/DUPLICATE output is a view over the task's own
		// input buffer, so the input descriptors must exist before the output
		// builder sub-views them.
		in, err := a.BuildInputFIFOs(t)
		if err != nil {
			return nil, fmt.Errorf("launcher: task %s: %w", t.Ref(), err)
		}
		out, err := a.BuildOutputFIFOs(t)
		if err != nil {
			return nil, fmt.Errorf("launcher: task %s: %w", t.Ref(), err)
		}

		l.queueDeferredSync(t, out, successors[t.Ref()])

		job, err := l.dispatch(t, in, out, successors[t.Ref()])
		if err != nil {
			return nil, err
		}
		built = append(built, job)
	}
	return built, nil
}

func (l *Launcher) dispatch(t *scheduler.ListTask, in, out []alloc.Descriptor, successors []*scheduler.ListTask) (JobMessage, error) {
	v := t.Handler.Graph.Vertex(t.Vertex)
	kernelID := 0
	if v.RtInfo != nil {
		kernelID = v.RtInfo.KernelID
	}

	job := JobMessage{
		TaskIndex:       l.taskIndex(t),
		KernelID:        kernelID,
		NumParamsOut:    len(v.OutParams),
		InputParams:     paramInputs(t),
		InputFIFOs:      toFifoRefs(in),
		OutputFIFOs:     toFifoRefs(out),
		ExecConstraints: l.execConstraints(t),
		NotifyFlags:     l.notifyFlags(t, successors),
	}
	l.appendAndPush(t.PE, &job)
	l.dispatched[t.Ref()] = dispatchInfo{lrt: t.PE, execIndex: job.ExecIndex}

	if l.obs != nil {
		l.obs.Info(context.Background(), "task dispatched",
			observability.String(observability.AttrTaskVertex, v.Name),
			observability.Int64(observability.AttrTaskFiring, t.Firing),
			observability.Int(observability.AttrTaskPE, t.PE),
			observability.Int(observability.AttrTaskCluster, t.Cluster),
		)
	}
	return job, nil
}

// appendAndPush assigns the next exec index for lrt, appends job to the job table and pushes a JOB_ADD for it.
func (l *Launcher) appendAndPush(lrt int, job *JobMessage) {
	execIx := l.execCounter[lrt]
	l.execCounter[lrt] = execIx + 1
	job.ExecIndex = execIx

	jobIx := len(l.jobs)
	l.jobs = append(l.jobs, *job)
	l.push(lrt, Message{Kind: JobAdd, JobIndex: jobIx})
}

func (l *Launcher) push(lrt int, msg Message) {
	if q, ok := l.queues[lrt]; ok {
		q.Push(msg)
	}
}

// taskIndex assigns (and memoizes, in the handler's own task-index table)
// a dense per-handler task id for t, the task_ix of the job layout.
func (l *Launcher) taskIndex(t *scheduler.ListTask) int {
	key := firing.TaskKey{VertexIx: t.Vertex, Firing: t.Firing}
	if ix, ok := t.Handler.TaskIndex[key]; ok {
		return ix
	}
	ix := len(t.Handler.TaskIndex)
	t.Handler.TaskIndex[key] = ix
	return ix
}

// execConstraints derives the highest predecessor exec-index
// that ran on each distinct LRT other than t's own (same-LRT predecessors
// are already ordered by job-queue FIFO order and need no constraint).
func (l *Launcher) execConstraints(t *scheduler.ListTask) []ExecConstraint {
	best := make(map[int]int64)
	for _, dep := range t.Predecessors {
		info, ok := l.dispatched[dep]
		if !ok || info.lrt == t.PE {
			continue
		}
		if cur, seen := best[info.lrt]; !seen || info.execIndex > cur {
			best[info.lrt] = info.execIndex
		}
	}
	lrts := make([]int, 0, len(best))
	for lrt := range best {
		lrts = append(lrts, lrt)
	}
	sort.Ints(lrts)
	out := make([]ExecConstraint, 0, len(lrts))
	for _, lrt := range lrts {
		out = append(out, ExecConstraint{LRT: lrt, Index: best[lrt]})
	}
	return out
}

// notifyFlags sets true every LRT hosting a successor already mapped (this
// wave) to a different LRT than t. A successor not yet resolved this wave
// needs no flag here: once a later wave builds its own job, its
// ExecConstraints will still find t through the persisted dispatch record.
func (l *Launcher) notifyFlags(t *scheduler.ListTask, successors []*scheduler.ListTask) map[int]bool {
	if len(successors) == 0 {
		return nil
	}
	flags := make(map[int]bool)
	for _, s := range successors {
		if s.PE == t.PE {
			continue
		}
		if s.State != scheduler.Ready && s.State != scheduler.Skipped {
			continue
		}
		flags[s.PE] = true
	}
	if len(flags) == 0 {
		return nil
	}
	return flags
}

// queueDeferredSync inspects t's outgoing edges for consumers mapped to a
// different cluster and, for each, queues a SYNC_SEND/SYNC_RECEIVE
// obligation against the consumer's task ref, sized from t's own already-
// built output descriptor for that port.
func (l *Launcher) queueDeferredSync(t *scheduler.ListTask, out []alloc.Descriptor, successors []*scheduler.ListTask) {
	v := t.Handler.Graph.Vertex(t.Vertex)
	for _, s := range successors {
		if s.Cluster < 0 || s.Cluster == t.Cluster || s.Handler != t.Handler {
			continue
		}
		port := outputPortTo(v, s.Vertex)
		if port < 0 || port >= len(out) {
			continue
		}
		bus, ok := l.plat.Bus(t.Cluster, s.Cluster)
		if !ok {
			continue
		}
		l.pendingSync[s.Ref()] = append(l.pendingSync[s.Ref()], syncPair{
			bus:        bus,
			srcCluster: t.Cluster,
			dstCluster: s.Cluster,
			size:       out[port].Size,
		})
	}
}

// flushPendingSync emits, for the task about to launch, every SYNC_SEND
// then SYNC_RECEIVE pair queued against it by an already-dispatched
// producer, in queue order.
func (l *Launcher) flushPendingSync(s *scheduler.ListTask) {
	pairs := l.pendingSync[s.Ref()]
	if len(pairs) == 0 {
		return
	}
	delete(l.pendingSync, s.Ref())
	for _, p := range pairs {
		srcLRT, ok := l.firstEnabledPE(p.srcCluster)
		if !ok {
			continue
		}
		send := JobMessage{
			KernelID:    p.bus.SendKernelID,
			OutputFIFOs: []FifoRef{{Size: p.size, Count: 1, Attribute: int(pisdf.ROnly)}},
		}
		l.appendAndPush(srcLRT, &send)

		recv := JobMessage{
			KernelID:   p.bus.RecvKernelID,
			InputFIFOs: []FifoRef{{Size: p.size, Count: 1, Attribute: int(pisdf.WOnly)}},
		}
		l.appendAndPush(s.PE, &recv)
	}
}

// PushNotifications pushes the MEM_UPDATE_ADDR/MEM_UPDATE_COUNT pairs the
// allocator emits once a pending FIFO's consumer side resolves to the first
// enabled runner of each notification's cluster.
func (l *Launcher) PushNotifications(notes []alloc.Notification) {
	for _, n := range notes {
		lrt, ok := l.firstEnabledPE(n.Cluster)
		if !ok {
			continue
		}
		switch n.Kind {
		case alloc.MemUpdateAddr:
			l.push(lrt, Message{Kind: MemUpdateAddr, Address: n.Address})
		case alloc.MemUpdateCount:
			l.push(lrt, Message{Kind: MemUpdateCount, Count: n.Count})
		}
	}
}

func (l *Launcher) firstEnabledPE(cluster int) (int, bool) {
	if cluster < 0 || cluster >= len(l.plat.Clusters) {
		return 0, false
	}
	for _, pe := range l.plat.Clusters[cluster].PEs {
		if pe.Enabled {
			return pe.VirtualIndex, true
		}
	}
	return 0, false
}

// AwaitParams blocks until it has received one JOB_SENT_PARAM per vertex
// index in configVertices, writing each received value into h via
// firing.Handler.SetParamValue in the vertex's OutParams order. A
// FinishedTask message arriving in the meantime is consumed and ignored, so
// runners may freely interleave completion acks with parameter reports. Any
// other message kind is a protocol violation.
func (l *Launcher) AwaitParams(ctx context.Context, h *firing.Handler, configVertices []int) error {
	remaining := make(map[int]bool, len(configVertices))
	for _, v := range configVertices {
		remaining[v] = true
	}
	for len(remaining) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-l.feedback:
			switch msg.Kind {
			case JobSentParam:
				if !remaining[msg.ConfigVertex] {
					continue
				}
				v := h.Graph.Vertex(msg.ConfigVertex)
				for i, pix := range v.OutParams {
					if i >= len(msg.Values) {
						break
					}
					if err := h.SetParamValue(pix, msg.Values[i]); err != nil {
						return fmt.Errorf("launcher: config vertex %q: %w", v.Name, err)
					}
				}
				delete(remaining, msg.ConfigVertex)
			case FinishedTask:
				continue
			default:
				return fmt.Errorf("launcher: %w: kind %v", ErrProtocolViolation, msg.Kind)
			}
		}
	}
	return nil
}

// BroadcastStartIteration pushes LRT_START_ITERATION to every runner queue.
func (l *Launcher) BroadcastStartIteration() { l.broadcast(Message{Kind: LRTStartIteration}) }

// BroadcastEndIteration pushes LRT_END_ITERATION to every runner queue.
func (l *Launcher) BroadcastEndIteration() { l.broadcast(Message{Kind: LRTEndIteration}) }

// BroadcastReset pushes RESET to every runner queue, for use on interrupt.
func (l *Launcher) BroadcastReset() { l.broadcast(Message{Kind: Reset}) }

func (l *Launcher) broadcast(msg Message) {
	for _, q := range l.queues {
		q.Push(msg)
	}
}

// Clear discards per-iteration bookkeeping (exec-index counters, dispatch
// records, the pending sync queue and the job table) and broadcasts CLEAR
// to every runner so they discard their runner-local parameters.
func (l *Launcher) Clear() {
	l.execCounter = make(map[int]int64)
	l.dispatched = make(map[scheduler.TaskRef]dispatchInfo)
	l.pendingSync = make(map[scheduler.TaskRef][]syncPair)
	l.jobs = nil
	l.broadcast(Message{Kind: Clear})
}

func successorsOf(tasks []*scheduler.ListTask) map[scheduler.TaskRef][]*scheduler.ListTask {
	out := make(map[scheduler.TaskRef][]*scheduler.ListTask)
	for _, t := range tasks {
		for _, dep := range t.Predecessors {
			out[dep] = append(out[dep], t)
		}
	}
	return out
}

func outputPortTo(v *pisdf.Vertex, sinkVertexIx int) int {
	for i, edgeIx := range v.OutEdges {
		if v.Graph.Edge(edgeIx).SinkVertex == sinkVertexIx {
			return i
		}
	}
	return -1
}

func paramInputs(t *scheduler.ListTask) []int64 {
	v := t.Handler.Graph.Vertex(t.Vertex)
	values := t.Handler.ParamValues()
	out := make([]int64, len(v.InParams))
	for i, pix := range v.InParams {
		out[i] = int64(math.Round(values[pix]))
	}
	return out
}

func toFifoRefs(descs []alloc.Descriptor) []FifoRef {
	out := make([]FifoRef, len(descs))
	for i, d := range descs {
		out[i] = toFifoRef(d)
	}
	return out
}

func toFifoRef(d alloc.Descriptor) FifoRef {
	ref := FifoRef{Address: d.Address, Offset: d.Offset, Size: d.Size, Count: d.Count, Attribute: int(d.Attribute)}
	if len(d.Sub) > 0 {
		ref.Sub = toFifoRefs(d.Sub)
	}
	return ref
}
