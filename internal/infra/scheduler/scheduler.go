// File: internal/infra/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/infra/metrics"
)

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron specs. A run that is still going when its next
// tick fires is skipped, and every run gets a bounded timeout.
type Scheduler struct {
	cron    *cron.Cron
	log     *zerolog.Logger
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a scheduler. If timeout <= 0 runs are bounded to 5 minutes.
func New(logger *zerolog.Logger, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Logger()
	cl := cronLogger{log: &l}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     &l,
		timeout: timeout,
	}
}

// Add registers job under spec (standard five-field cron or a descriptor
// such as "@hourly").
func (s *Scheduler) Add(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name(), spec, err)
	}
	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("job scheduled")
	return nil
}

// Start begins dispatching. Calling it twice has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow executes job once outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	return s.exec(ctx, job)
}

func (s *Scheduler) run(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	_ = s.exec(ctx, job)
}

func (s *Scheduler) exec(parent context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		metrics.IncJobRun(job.Name(), "error")
		s.log.Error().Err(err).Str("job", job.Name()).Dur("took", time.Since(start)).Msg("job failed")
		return err
	}
	metrics.IncJobRun(job.Name(), "ok")
	s.log.Debug().Str("job", job.Name()).Dur("took", time.Since(start)).Msg("job finished")
	return nil
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{ log *zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
