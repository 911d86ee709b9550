// File: internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/internal/metrics"
	"github.com/soroscan/soroscan/pkg/utils"
)

// Task is one unit of background work
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// SchedulerConfig holds worker pool settings
type SchedulerConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`
}

// Scheduler runs background tasks on a fixed worker pool. A panicking task
// is recovered and recorded as a failure; it never takes a worker down.
type Scheduler struct {
	config  *SchedulerConfig
	queue   chan *Task
	metrics *metrics.PrometheusMetrics
	logger  *logrus.Entry

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler
func NewScheduler(config *SchedulerConfig, m *metrics.PrometheusMetrics) *Scheduler {
	return &Scheduler{
		config:  config,
		queue:   make(chan *Task, config.QueueSize),
		metrics: m,
		logger:  utils.Component("scheduler"),
	}
}

// Start launches the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.running = true

	s.logger.WithFields(logrus.Fields{
		"workers":    s.config.Workers,
		"queue_size": s.config.QueueSize,
	}).Info("Scheduler started")

	return nil
}

// Stop drains in-flight tasks and shuts down the pool
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()
	s.wg.Wait()
	s.running = false

	s.logger.Info("Scheduler stopped")
	return nil
}

// IsHealthy reports whether the scheduler is running
func (s *Scheduler) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Submit enqueues a task. It fails fast when the queue is full so ingestion
// backpressure surfaces to the caller instead of blocking request handling.
func (s *Scheduler) Submit(name string, run func(ctx context.Context) error) error {
	task := &Task{Name: name, Run: run}
	select {
	case s.queue <- task:
		return nil
	default:
		if s.metrics != nil {
			s.metrics.RecordTaskFailure(name)
		}
		return utils.NewAppError(utils.ErrCodeProcessing, "Task queue full", name)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case task := <-s.queue:
			s.runTask(task)
		}
	}
}

func (s *Scheduler) runTask(task *Task) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"task":  task.Name,
				"panic": r,
			}).Error("Task panicked")
			if s.metrics != nil {
				s.metrics.RecordTaskFailure(task.Name)
			}
		}
		if s.metrics != nil {
			s.metrics.RecordTaskDuration(task.Name, time.Since(start))
		}
	}()

	if err := task.Run(s.ctx); err != nil {
		s.logger.WithFields(logrus.Fields{
			"task":  task.Name,
			"error": err.Error(),
		}).Warn("Task failed")
		if s.metrics != nil {
			s.metrics.RecordTaskFailure(task.Name)
		}
	}
}

// Every runs a task on a fixed interval until the scheduler stops. The first
// run happens after one interval.
func (s *Scheduler) Every(interval time.Duration, name string, run func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := s.Submit(name, run); err != nil {
					s.logger.WithField("task", name).Debug("Periodic task submission skipped")
				}
			}
		}
	}()
}
