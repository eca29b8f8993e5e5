package worker

import (
	"context"
	"sync"

	"github.com/martinsuchenak/ipamd/internal/log"
)

// Pool runs jobs on a fixed number of workers. The syncer uses it to
// fetch slow sources (provider exports, SNMP walks) concurrently.
type Pool struct {
	workers int
	jobs    chan Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// Job is a unit of work. When Result is non-nil the job's error is
// delivered there after the handler returns.
type Job struct {
	Name    string
	Handler func(context.Context) error
	Result  chan error
}

// NewPool creates a pool with the given number of workers
func NewPool(workers int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Debug("Worker pool started", "workers", p.workers)
}

// Stop drains the queue and waits for in-flight jobs
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}

// Submit queues a job. Fails when the pool is shutting down.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}

			log.Debug("Worker executing job", "worker_id", id, "job", job.Name)

			err := job.Handler(p.ctx)
			if job.Result != nil {
				job.Result <- err
			}
		}
	}
}
