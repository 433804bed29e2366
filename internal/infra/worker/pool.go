// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ErrPoolClosed is returned by Submit after Stop.
var ErrPoolClosed = errors.New("worker pool closed")

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	wg     sync.WaitGroup
	jobs   chan Task
	quit   chan struct{}
	once   sync.Once
	n      int
	log    *zerolog.Logger
	closed bool
	mu     sync.RWMutex
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{jobs: make(chan Task, workers*4), quit: make(chan struct{}), n: workers, log: &l}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					if err := task(ctx); err != nil {
						p.log.Warn().Err(err).Int("worker", id).Msg("task failed")
					}
				}
			}
		}(i)
	}
}

// Stop signals the workers and waits for running tasks. Queued tasks that
// were not picked up are dropped.
func (p *Pool) Stop() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.quit)
	})
	p.wg.Wait()
}

// Submit blocks until the task is queued, ctx is done or the pool stops.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- task:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
