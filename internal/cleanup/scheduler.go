// Package cleanup runs periodic maintenance over in-process state, such as
// idle chat sessions and expired cache entries.
package cleanup

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/tradiecrm/internal/logger"
)

// Task is one maintenance step. Run returns the number of items it removed.
type Task struct {
	Name string
	Run  func() int
}

// Config holds configuration for the cleanup scheduler.
type Config struct {
	Enabled  bool   // Enable periodic cleanup
	Schedule string // Cron expression or descriptor, e.g. "@every 5m"
}

// Stats holds the result of a single run.
type Stats struct {
	Removed  map[string]int // Items removed per task
	Duration time.Duration  // Time taken for the run
}

// Total returns the number of items removed by all tasks.
func (s Stats) Total() int {
	n := 0
	for _, v := range s.Removed {
		n += v
	}
	return n
}

// Scheduler runs the registered tasks on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	config  Config
	tasks   []Task
	logger  *logger.Logger
	mu      sync.Mutex
	started bool
}

// NewScheduler creates a scheduler for tasks. The schedule is parsed even
// when the scheduler is disabled.
func NewScheduler(config Config, log *logger.Logger, tasks ...Task) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", config.Schedule, err)
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		config: config,
		tasks:  tasks,
		logger: log,
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.RunOnce() }))
	return s, nil
}

// Start begins the periodic runs. It does nothing when the scheduler is
// disabled or already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info("cleanup scheduler disabled")
		return
	}
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("cleanup scheduler started",
		logger.Field{Key: "schedule", Value: s.config.Schedule},
		logger.Field{Key: "tasks", Value: len(s.tasks)})
}

// Stop halts the schedule and waits for a run in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("cleanup scheduler stopped")
}

// RunOnce executes every task immediately.
func (s *Scheduler) RunOnce() Stats {
	start := time.Now()
	stats := Stats{Removed: make(map[string]int, len(s.tasks))}
	for _, t := range s.tasks {
		stats.Removed[t.Name] = t.Run()
	}
	stats.Duration = time.Since(start)

	if total := stats.Total(); total > 0 {
		fields := []logger.Field{
			{Key: "removed", Value: total},
			{Key: "duration_ms", Value: stats.Duration.Milliseconds()},
		}
		for name, n := range stats.Removed {
			fields = append(fields, logger.Field{Key: name, Value: n})
		}
		s.logger.Info("cleanup completed", fields...)
	} else {
		s.logger.Debug("cleanup completed: nothing to remove")
	}
	return stats
}
