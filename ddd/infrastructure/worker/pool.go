package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/repo"
	"clipforge/pkg/logger"
)

// jobRunner is the single-job pipeline Pool dispatches onto; *Orchestrator
// is the only production implementation, narrowed to an interface here so
// the dispatch loop itself can be exercised without real C1-C5 subprocess
// collaborators.
type jobRunner interface {
	Run(ctx context.Context, job *entity.Job, registry repo.JobRepository)
}

// Pool is the bounded-concurrency dispatcher: concurrency goroutines, each
// looping Registry.Dequeue -> Orchestrator.Run, grounded on the teacher's
// transcodeWorkerImpl.workerLoop goroutine-per-slot shape and on
// other_examples/Bobarinn-video-genie__worker.go's semaphore-style bound on
// in-flight work (MAX_CONCURRENT_JOBS, spec.md §4.6).
type Pool struct {
	registry     repo.JobRepository
	orchestrator jobRunner
	concurrency  int

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running int32
}

func NewPool(registry repo.JobRepository, orchestrator *Orchestrator, concurrency int) *Pool {
	return newPool(registry, orchestrator, concurrency)
}

func newPool(registry repo.JobRepository, orchestrator jobRunner, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{registry: registry, orchestrator: orchestrator, concurrency: concurrency}
}

// Name identifies this Pool as a pkg/task.BackgroundTask.
func (p *Pool) Name() string { return "job-worker-pool" }

// Start spawns concurrency worker loops. It is idempotent: calling it
// again while already running is a no-op, matching pkg/task.manager's
// expectation that Start is called exactly once per registered task but
// may be invoked defensively more than that.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(runCtx, i)
	}
	logger.Infof("worker pool started with %d slots", p.concurrency)
	return nil
}

// Stop cancels all worker loops and blocks until they exit.
func (p *Pool) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	logger.Infof("worker pool stopped")
	return nil
}

// InFlight reports how many slots are currently running a job.
func (p *Pool) InFlight() int {
	return int(atomic.LoadInt32(&p.running))
}

func (p *Pool) loop(ctx context.Context, slot int) {
	defer p.wg.Done()
	for {
		job, err := p.registry.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		atomic.AddInt32(&p.running, 1)
		p.orchestrator.Run(ctx, job, p.registry)
		atomic.AddInt32(&p.running, -1)
	}
}
