// Package worker defines the pool that drains sweep recompute jobs.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/reputor/reputor/internal/adapters/mq/queue"
	"github.com/reputor/reputor/pkg/logger"
	"github.com/reputor/reputor/pkg/metrics"
)

// Job is what workers read off the queue.
type Job = queue.Job

// Recomputer executes one recomputation job. Implementations must follow
// the engine's degradation policy: a job error is logged, never fatal.
type Recomputer interface {
	RecomputeJob(ctx context.Context, j Job) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Pool runs a fixed number of workers draining the sweep queue.
type Pool struct {
	queue      Queue
	recomputer Recomputer
	count      int

	wg     sync.WaitGroup
	stopCh chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(p *Pool) {
		if count > 0 {
			p.count = count
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool creates a worker pool with configuration options.
func NewPool(q Queue, r Recomputer, opts ...Option) *Pool {
	p := &Pool{
		queue:      q,
		recomputer: r,
		count:      4,
		stopCh:     make(chan struct{}),
		logger:     logger.Get().Named("sweep"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. They run until the queue closes, the context
// is cancelled, or Shutdown is called.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerActive(p.count)
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	jobs := p.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := p.recomputer.RecomputeJob(ctx, job); err != nil {
				p.logger.Error(ctx, "sweep recompute failed",
					logger.Int("worker", id),
					logger.String("subject_id", job.SubjectID),
					logger.String("kind", string(job.Kind)),
					logger.Error(err))
				metrics.RecordErrorByComponent("sweep", "recompute")
			}
		}
	}
}

// Shutdown stops the pool and waits for in-flight jobs to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		metrics.UpdateWorkerActive(0)
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "sweep pool shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
