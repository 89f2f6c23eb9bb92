// Package scheduler runs named maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "mcwatch/pkg/logx"
)

// Job is one maintenance task. The context is canceled when the service
// stops; long-running jobs must honor it.
type Job func(ctx context.Context)

type Service struct {
	cron *cron.Cron
	log  logx.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

func New(log logx.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: map[string]cron.EntryID{},
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{log})))
	return s
}

// AddCron registers a job under a unique name with a cron expression.
// Re-registering a name replaces the previous schedule.
func (s *Service) AddCron(name, spec string, job Job) error {
	if name == "" || job == nil {
		return fmt.Errorf("scheduler: name and job are required")
	}
	wrapped := func() {
		if s.ctx.Err() != nil {
			return
		}
		start := time.Now()
		job(s.ctx)
		s.log.Debug("maintenance job ran",
			logx.String("job", name), logx.Duration("took", time.Since(start)))
	}
	id, err := s.cron.AddFunc(spec, wrapped)
	if err != nil {
		return fmt.Errorf("scheduler: add %q: %w", name, err)
	}

	s.mu.Lock()
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
	}
	s.entries[name] = id
	s.mu.Unlock()
	return nil
}

// AddInterval registers a job that runs every d.
func (s *Service) AddInterval(name string, d time.Duration, job Job) error {
	if d <= 0 {
		return fmt.Errorf("scheduler: interval for %q must be positive", name)
	}
	return s.AddCron(name, "@every "+d.String(), job)
}

func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Names lists registered jobs.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	return out
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop cancels the job context and waits for running jobs to finish.
func (s *Service) Stop() {
	s.cancel()
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if started {
		<-s.cron.Stop().Done()
	}
}

// cronLogger adapts logx to cron's logger, used by the panic recoverer.
type cronLogger struct {
	log logx.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.log.Debug(msg, logx.Any("details", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Error(msg, logx.Err(err), logx.Any("details", kv))
}
