// Package scheduler drives the periodic background operations: relay ticks,
// stuck recovery, cleanups and DLQ transfers. One bounded pool is shared by
// every task so a burst of slow ticks cannot exhaust the process.
package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// maxDefaultPoolSize caps the default pool size on large machines.
const maxDefaultPoolSize = 5

// Task is one periodic operation. Run is invoked every Interval after an
// InitialDelay, never concurrently with itself.
type Task struct {
	// Name identifies the task in logs.
	Name string
	// InitialDelay postpones the first run so tasks do not thundering-herd
	// the database at startup.
	InitialDelay time.Duration
	// Interval is the fixed delay between the end of one run and the start
	// of the next.
	Interval time.Duration
	// Run performs one tick. Errors are logged, panics are recovered; a
	// failing tick never cancels future ticks.
	Run func(ctx context.Context) error
}

// Scheduler runs registered tasks on a shared bounded pool. Shutdown is
// cooperative: in-flight ticks finish, no new ticks start.
type Scheduler struct {
	pool   *semaphore.Weighted
	logger *slog.Logger
	tasks  []Task

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a Scheduler with the given pool size. A non-positive poolSize
// selects the default of min(NumCPU, 5).
func New(poolSize int, logger *slog.Logger) *Scheduler {
	if poolSize <= 0 {
		poolSize = min(runtime.NumCPU(), maxDefaultPoolSize)
	}
	return &Scheduler{
		pool:   semaphore.NewWeighted(int64(poolSize)),
		logger: logger,
	}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

// Start launches one goroutine per task. The goroutines exit when ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, task := range s.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			s.loop(runCtx, task)
		}(task)
	}

	go func() {
		wg.Wait()
		close(s.done)
	}()

	s.logger.Info("scheduler started", slog.Int("tasks", len(s.tasks)))
}

// Stop cancels the task loops and waits for in-flight ticks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("scheduler stopped")
}

// loop drives one task: initial delay, then fixed-delay ticks until the
// context is cancelled.
func (s *Scheduler) loop(ctx context.Context, task Task) {
	if task.InitialDelay > 0 {
		timer := time.NewTimer(task.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	for {
		s.tick(ctx, task)

		timer := time.NewTimer(task.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tick runs one task iteration inside the shared pool with panic recovery.
// The loop context gates scheduling only: cancellation stops new ticks, but
// the run itself is detached so shutdown never aborts a database transaction
// already in flight.
func (s *Scheduler) tick(ctx context.Context, task Task) {
	if err := s.pool.Acquire(ctx, 1); err != nil {
		// Context cancelled while waiting for a slot.
		return
	}
	defer s.pool.Release(1)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				slog.String("task", task.Name),
				slog.Any("panic", r),
			)
		}
	}()

	if err := task.Run(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("scheduler task failed",
			slog.String("task", task.Name),
			slog.Any("error", err),
		)
	}
}
