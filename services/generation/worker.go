package generation

import (
	"fmt"
	"sync"
	"time"

	"github.com/upb/gen-orchestrator/models"
	"github.com/upb/gen-orchestrator/services"
	"github.com/upb/gen-orchestrator/services/providers"
	"github.com/upb/gen-orchestrator/services/routing"
	"go.uber.org/zap"
)

// job is one submitted generation waiting for a worker
type job struct {
	generation *models.Generation
	kind       providers.TaskKind
	payload    providers.Payload
	opts       routing.Options
	requestID  string
}

// workerPool runs jobs on a fixed number of goroutines fed by a bounded queue
type workerPool struct {
	workers int
	jobs    chan *job
	handle  func(*job)
	logger  *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func newWorkerPool(workers, queueSize int, handle func(*job), logger *zap.Logger) *workerPool {
	return &workerPool{
		workers: workers,
		jobs:    make(chan *job, queueSize),
		handle:  handle,
		logger:  logger,
	}
}

func (p *workerPool) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("generation workers already started")
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
	p.logger.Info("started generation workers",
		zap.Int("worker_count", p.workers),
		zap.Int("queue_size", cap(p.jobs)))

	return nil
}

// stop closes the queue and waits for the workers to drain it
func (p *workerPool) stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("generation workers not running")
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("stopping generation workers", zap.Int("pending_jobs", len(p.jobs)))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("generation workers stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("generation workers stop timeout after %v", timeout)
	}
}

// enqueue never blocks: a full queue is reported as a rate-limit error
func (p *workerPool) enqueue(j *job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return services.WrapInternal("generation workers not running", nil)
	}

	select {
	case p.jobs <- j:
		return nil
	default:
		p.logger.Warn("generation queue full, rejecting submission",
			zap.String("generation_id", j.generation.ID.String()),
			zap.Int("queue_size", cap(p.jobs)))
		return services.ErrQueueFull
	}
}

func (p *workerPool) depth() int {
	return len(p.jobs)
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("generation worker started", zap.Int("worker_id", id))

	for j := range p.jobs {
		p.handle(j)
	}

	p.logger.Debug("generation worker stopped", zap.Int("worker_id", id))
}
