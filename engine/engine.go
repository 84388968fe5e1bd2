// Package engine implements the runtime driver (C9): the lifecycle API
// (Start/CreateRuntimeContext/Run/DestroyRuntimeContext/Quit), the
// static-then-dynamic iteration loop, and the fatal-error classification
// surfaced to the embedder.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/preesm/spider2-sub002/alloc"
	"github.com/preesm/spider2-sub002/firing"
	"github.com/preesm/spider2-sub002/internal/utils"
	"github.com/preesm/spider2-sub002/launcher"
	"github.com/preesm/spider2-sub002/pisdf"
	"github.com/preesm/spider2-sub002/providers/observability"
	"github.com/preesm/spider2-sub002/scheduler"
	"github.com/preesm/spider2-sub002/store"
)

// Engine is the single-GRT-thread driver: one launcher and one allocator
// shared across every runtime context it creates, matching the "single GRT
// thread" model.
type Engine struct {
	config   *Config
	launcher *launcher.Launcher
	alloc    *alloc.Allocator
	obs      observability.Provider

	stopped atomic.Bool
}

// Start brings the engine up: one launcher queue per enabled PE, one
// allocator seeded from the platform's persistent-delay store.
func Start(config *Config) (*Engine, error) {
	if config == nil || config.Platform == nil {
		return nil, &Error{Kind: InvalidGraph, Err: fmt.Errorf("engine: start requires a loaded platform")}
	}
	if err := config.Platform.Validate(); err != nil {
		return nil, classify(err, "", InvalidGraph)
	}
	if config.Store == nil {
		config.Store = store.NewInMemory()
	}
	if config.Trace == nil {
		config.Trace = noopTrace{}
	}
	e := &Engine{
		config:   config,
		launcher: launcher.NewLauncher(config.Platform, config.Observer),
		alloc:    alloc.New(config.Platform, config.Store, config.AllocMode),
		obs:      config.Observer,
	}
	return e, nil
}

// Queue exposes the runner inbox for lrt so an embedder can wire a runner
// loop to it.
func (e *Engine) Queue(lrt int) (*launcher.Queue, bool) { return e.launcher.Queue(lrt) }

// Feedback exposes the send side of the parameter/completion channel
// runners push JOB_SENT_PARAM/FINISHED_TASK messages onto.
func (e *Engine) Feedback() chan<- launcher.RunnerMessage { return e.launcher.Feedback() }

// Job looks up a previously dispatched JobMessage by the JobIndex a JOB_ADD
// message carries, so a runner loop can resolve the job it was just told
// about without keeping its own parallel table.
func (e *Engine) Job(ix int) (launcher.JobMessage, bool) {
	jobs := e.launcher.Jobs()
	if ix < 0 || ix >= len(jobs) {
		return launcher.JobMessage{}, false
	}
	return jobs[ix], true
}

// RuntimeContext binds one PiSDF graph to the engine: its root firing
// handler and the run mode driving Run's iteration count.
type RuntimeContext struct {
	graph *pisdf.Graph
	root  *firing.Handler
	mode  RunMode
}

// CreateRuntimeContext builds a fresh root handler over graph, under the
// given run mode, and reserves the persistent-delay region: every persistent
// delay anywhere in the hierarchy gets its fixed, zero-initialized slice
// once, here, and keeps it until the engine shuts down.
func (e *Engine) CreateRuntimeContext(graph *pisdf.Graph, mode RunMode) (*RuntimeContext, error) {
	if graph == nil {
		return nil, &Error{Kind: InvalidGraph, Err: fmt.Errorf("engine: nil graph")}
	}
	rc := &RuntimeContext{graph: graph, root: firing.NewRootHandler(graph), mode: mode}
	if err := rc.root.EvaluateStaticAndDependantParams(); err != nil {
		return nil, classify(err, "", NumericError)
	}
	if err := e.reservePersistentDelays(graph, rc.root.ParamValues(), graph.Name); err != nil {
		return nil, err
	}
	return rc, nil
}

// reservePersistentDelays walks the graph tree depth-first and carves a slice
// of the GRT cluster's reserved region for each persistent delay, recording
// the assigned virtual address on the delay. Sub-graph delay sizes are
// evaluated against that graph's own static parameters.
func (e *Engine) reservePersistentDelays(g *pisdf.Graph, values []float64, path string) error {
	cluster, _, ok := e.config.Platform.GRT()
	if !ok {
		cluster = 0
	}
	for _, edge := range g.Edges {
		d := edge.Delay
		if d == nil || !d.Persistent {
			continue
		}
		size, err := d.ValueExpr.Eval(values)
		if err != nil {
			return classify(err, "", NumericError)
		}
		key := store.Key{GraphPath: path, EdgeIndex: edge.Index}
		addr, err := e.alloc.ReservePersistentDelay(context.Background(), cluster, key, int64(size))
		if err != nil {
			return classify(err, "", AllocatorExhausted)
		}
		d.Address = addr
	}
	for _, v := range g.Vertices {
		if v.Subtype != pisdf.GraphActor || v.SubGraph == nil {
			continue
		}
		sub := firing.NewRootHandler(v.SubGraph)
		if err := sub.EvaluateStaticAndDependantParams(); err != nil {
			return classify(err, "", NumericError)
		}
		if err := e.reservePersistentDelays(v.SubGraph, sub.ParamValues(), path+"/"+v.Name); err != nil {
			return err
		}
	}
	return nil
}

// DestroyRuntimeContext discards the allocator's per-iteration state and
// clears the launcher, the way Clear() resets dispatch bookkeeping between
// unrelated runtime contexts sharing one engine.
func (e *Engine) DestroyRuntimeContext(_ *RuntimeContext) {
	e.alloc.Clear()
	e.launcher.Clear()
}

// Quit sets the process-wide stop flag INFINITE mode polls at iteration
// boundaries.
func (e *Engine) Quit() {
	e.stopped.Store(true)
	e.launcher.BroadcastReset()
}

// Run drives rc's run mode: LOOP(n) runs exactly n iterations, EXTERN_LOOP
// runs exactly one, INFINITE runs until ctx is canceled or Quit is called.
func (e *Engine) Run(ctx context.Context, rc *RuntimeContext) error {
	switch rc.mode.Kind {
	case Loop:
		for i := uint64(0); i < rc.mode.Count; i++ {
			if err := e.runIteration(ctx, rc); err != nil {
				return err
			}
		}
		return nil
	case ExternLoop:
		return e.runIteration(ctx, rc)
	default: // Infinite
		for !e.stopped.Load() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := e.runIteration(ctx, rc); err != nil {
				return err
			}
		}
		return nil
	}
}

// runIteration runs one application iteration: evaluate
// top-of-tree static parameters, then alternate schedule/launch waves with
// blocking waits for configuration-actor feedback until the firing set is
// exhausted.
func (e *Engine) runIteration(ctx context.Context, rc *RuntimeContext) error {
	root := rc.root
	if err := root.EvaluateStaticAndDependantParams(); err != nil {
		return classify(err, "", NumericError)
	}

	e.launcher.BroadcastStartIteration()
	timer := utils.NewTimer()
	if e.obs != nil {
		e.obs.Trace(ctx, observability.EventIterationStart)
	}

	var lastTaskCount = -1
	for {
		res, err := scheduler.Schedule(root, e.config.Platform, e.config.mappingPolicy())
		if err != nil {
			return classify(err, "", Deadlock)
		}

		built, err := e.launcher.LaunchWave(res, e.alloc)
		if err != nil {
			return classify(err, "", AllocatorExhausted)
		}

		notes, err := e.alloc.ResolvePending(root)
		if err != nil {
			return classify(err, "", NumericError)
		}
		e.launcher.PushNotifications(notes)

		pending := firing.PendingConfigActors(root)
		if len(pending) == 0 {
			e.config.Trace.OnIterationEnd(res.Tasks)
			break
		}
		if len(built) == 0 && len(res.Tasks) == lastTaskCount {
			return &Error{Kind: Deadlock, Err: fmt.Errorf("engine: wave produced no progress with %d config actor(s) still unresolved", len(pending))}
		}
		lastTaskCount = len(res.Tasks)

		h, vertices := groupFirstHandler(pending)
		if err := e.launcher.AwaitParams(ctx, h, vertices); err != nil {
			return classify(err, "", ProtocolViolation)
		}
	}

	e.launcher.BroadcastEndIteration()
	timer.Stop()
	if e.obs != nil {
		e.obs.Trace(ctx, observability.EventIterationEnd,
			observability.Int64(observability.AttrDuration, timer.GetDuration().Milliseconds()))
	}
	return nil
}

// groupFirstHandler collects every pending CONFIG vertex belonging to the
// same handler as pending[0], so a single AwaitParams call resolves one
// handler's feedback at a time: the wire protocol identifies a configuration
// actor only by vertex index, so two handlers could not be awaited
// concurrently without risking one handler's JOB_SENT_PARAM being
// misattributed to the other.
func groupFirstHandler(pending []firing.ConfigRef) (*firing.Handler, []int) {
	h := pending[0].Handler
	var vertices []int
	for _, p := range pending {
		if p.Handler == h {
			vertices = append(vertices, p.VertexIx)
		}
	}
	return h, vertices
}
