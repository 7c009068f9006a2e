// Package processing runs fire-and-forget side effects (emails, geolocation,
// PDF enqueueing) on a small pool of goroutines so they never block or fail
// the lifecycle transition that triggered them.
package processing

import (
	"context"
	"sync"

	"github.com/dharsanguruparan/PartnerGate/internal/logging"
)

// Job is one side effect. Name only identifies it in logs.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner accepts side-effect jobs.
type Runner interface {
	Submit(job Job)
}

// Processor consumes Jobs from a buffered channel.
type Processor struct {
	queue   chan Job
	workers int
	logger  logging.Logger
	wg      sync.WaitGroup
}

// New builds a Processor with queue capacity tied to worker count.
func New(workers int, logger logging.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Processor{
		queue:   make(chan Job, workers*16),
		workers: workers,
		logger:  logger.With("component", "side_effects"),
	}
}

// Start launches worker goroutines. They exit when ctx is cancelled, after
// draining whatever is already queued.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Submit queues a job. A full queue drops the job with a warning, matching
// the best-effort contract of side effects.
func (p *Processor) Submit(job Job) {
	select {
	case p.queue <- job:
	default:
		p.logger.Warn(context.Background(), "side effect queue full, dropping job", "job", job.Name)
	}
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case job := <-p.queue:
			p.process(context.WithoutCancel(ctx), job)
		}
	}
}

func (p *Processor) drain() {
	for {
		select {
		case job := <-p.queue:
			p.process(context.Background(), job)
		default:
			return
		}
	}
}

func (p *Processor) process(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "side effect panicked", "job", job.Name, "panic", r)
		}
	}()
	if err := job.Run(ctx); err != nil {
		p.logger.Warn(ctx, "side effect failed", "job", job.Name, "error", err)
	}
}

// Inline runs every job synchronously in the caller's goroutine. Services use
// it in tests so side effects are observable right after the call returns.
type Inline struct {
	Logger logging.Logger
}

func (i Inline) Submit(job Job) {
	if err := job.Run(context.Background()); err != nil && i.Logger != nil {
		i.Logger.Warn(context.Background(), "side effect failed", "job", job.Name, "error", err)
	}
}
