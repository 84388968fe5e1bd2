// Command spiderctl is a thin entry point wiring the engine's lifecycle API
// to a platform descriptor and a small demonstration graph; the real logic
// lives in the library packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/preesm/spider2-sub002/engine"
	"github.com/preesm/spider2-sub002/launcher"
	"github.com/preesm/spider2-sub002/providers/observability/slogobs"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var (
		envPath      = flag.String("env", "", "path to a .env file loaded into the process environment (optional)")
		platformPath = flag.String("platform", "cmd/spiderctl/platform.json", "path to the platform descriptor JSON file")
		iterations   = flag.Uint64("iterations", 1, "number of iterations to run in LOOP mode (0 runs INFINITE until interrupted)")
		roundRobin   = flag.Bool("round-robin", false, "use ROUND_ROBIN mapping instead of the default BEST_FIT")
	)
	flag.Parse()

	obs := slogobs.New(slogobs.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))

	policy := engine.BestFit
	if *roundRobin {
		policy = engine.RoundRobin
	}
	cfg, err := engine.LoadConfig(*envPath, *platformPath,
		engine.WithMappingPolicy(policy),
		engine.WithObserver(obs),
	)
	if err != nil {
		return fmt.Errorf("spiderctl: %w", err)
	}

	eng, err := engine.Start(cfg)
	if err != nil {
		return fmt.Errorf("spiderctl: %w", err)
	}

	graph, configVertex, err := buildDemoGraph()
	if err != nil {
		return fmt.Errorf("spiderctl: building demo graph: %w", err)
	}

	mode := engine.InfiniteMode()
	if *iterations > 0 {
		mode = engine.LoopMode(*iterations)
	}
	rc, err := eng.CreateRuntimeContext(graph, mode)
	if err != nil {
		return fmt.Errorf("spiderctl: %w", err)
	}
	defer eng.DestroyRuntimeContext(rc)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startRunners(ctx, eng, cfg, configVertex)

	if err := eng.Run(ctx, rc); err != nil {
		return fmt.Errorf("spiderctl: %w", err)
	}
	return nil
}

// startRunners spins up one demo runner goroutine per enabled PE. A real
// runner would invoke the kernel the JobMessage names; this one only
// exercises the coordination protocol: it replies FINISHED_TASK to
// every ordinary job immediately, and replies JOB_SENT_PARAM with the
// demonstration value once it sees CFG's job, so the engine's dynamic-graph
// wave loop has real feedback to resolve N against.
func startRunners(ctx context.Context, eng *engine.Engine, cfg *engine.Config, configVertex int) {
	for _, c := range cfg.Platform.Clusters {
		for _, pe := range c.PEs {
			if !pe.Enabled {
				continue
			}
			q, ok := eng.Queue(pe.VirtualIndex)
			if !ok {
				continue
			}
			go runRunner(ctx, eng, q, pe.VirtualIndex, configVertex)
		}
	}
}

func runRunner(ctx context.Context, eng *engine.Engine, q *launcher.Queue, lrt int, configVertex int) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-q.C():
			if !ok {
				return
			}
			if msg.Kind != launcher.JobAdd {
				continue
			}
			job, ok := eng.Job(msg.JobIndex)
			if !ok {
				continue
			}
			reply := launcher.RunnerMessage{Kind: launcher.FinishedTask, FromLRT: lrt, ExecIndex: job.ExecIndex}
			if job.KernelID == configKernelID {
				reply = launcher.RunnerMessage{
					Kind:         launcher.JobSentParam,
					FromLRT:      lrt,
					ConfigVertex: configVertex,
					Values:       []float64{demoDynamicTokens},
				}
			}
			select {
			case eng.Feedback() <- reply:
			case <-ctx.Done():
				return
			}
		}
	}
}
