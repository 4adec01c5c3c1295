package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/graph"
)

// Pool runs independent graph runs concurrently on a shared Runner, bounded
// by a maximum in-flight count. Each run still progresses sequentially
// through its own nodes per §5; the Pool only parallelizes across runs.
type Pool struct {
	runner      *Runner
	maxParallel int
}

// NewPool builds a Pool over runner with maxParallel concurrent runs. A
// non-positive maxParallel means unbounded.
func NewPool(runner *Runner, maxParallel int) *Pool {
	return &Pool{runner: runner, maxParallel: maxParallel}
}

// Job is one unit of work submitted to a Pool.
type Job struct {
	Graph   *graph.Graph
	Input   map[string]any
	Context execctx.ExecutionContext
}

// RunAll executes every job concurrently (bounded by maxParallel) and
// returns one RunReport per job in the same order as jobs. A job whose run
// returns an error still occupies its slot in the result slice with a zero
// RunReport; the first such error is returned as is, unwrapped, and the
// context of the jobs still running is cancelled (a FAILED or PAUSED
// RunReport is not itself an error here — only
// an error from Run's own plumbing is).
func (p *Pool) RunAll(ctx context.Context, jobs []Job) ([]graph.RunReport, error) {
	reports := make([]graph.RunReport, len(jobs))

	g, gCtx := errgroup.WithContext(ctx)
	if p.maxParallel > 0 {
		g.SetLimit(p.maxParallel)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			report, err := p.runner.Run(gCtx, job.Graph, job.Input, job.Context)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}
