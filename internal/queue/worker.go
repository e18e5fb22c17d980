package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/config"
)

// HandlerFunc executes one job. A returned error or a panic counts as a
// failed attempt.
type HandlerFunc func(ctx context.Context, job *Job) error

// Worker consumes jobs from a Driver. Handler failures never stop the loop.
type Worker struct {
	driver   Driver
	log      *zap.Logger
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	MaxAttempts int
	Backoff     time.Duration
	BackoffMax  time.Duration
	PollTimeout time.Duration
	Concurrency int
}

func NewWorker(d Driver, cfg config.QueueConfig, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		driver:      d,
		log:         log,
		handlers:    make(map[string]HandlerFunc),
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		BackoffMax:  cfg.BackoffMax,
		PollTimeout: cfg.PollTimeout,
		Concurrency: cfg.Concurrency,
	}
}

// Handle registers fn for jobs pushed under name.
func (w *Worker) Handle(name string, fn HandlerFunc) {
	w.mu.Lock()
	w.handlers[name] = fn
	w.mu.Unlock()
}

func (w *Worker) handler(name string) (HandlerFunc, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn, ok := w.handlers[name]
	return fn, ok
}

// Work runs Concurrency consumers on queue until ctx is done.
func (w *Worker) Work(ctx context.Context, queue string) error {
	if queue == "" {
		queue = DefaultQueue
	}
	n := max(w.Concurrency, 1)
	w.log.Info("worker started", zap.String("queue", queue), zap.Int("concurrency", n))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, queue, id)
		}(i)
	}
	wg.Wait()
	w.log.Info("worker stopped", zap.String("queue", queue))
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context, queue string, id int) {
	pause := time.Second
	for ctx.Err() == nil {
		_, err := w.RunOnce(ctx, queue)
		if err == nil {
			pause = time.Second
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		w.log.Warn("queue pop failed", zap.Int("consumer", id), zap.String("queue", queue), zap.Error(err), zap.Duration("retry_in", pause))
		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
		if pause < 30*time.Second {
			pause *= 2
		}
	}
}

// RunOnce pops and processes at most one job. It reports whether a job was
// processed; the error covers only the driver, never the handler.
func (w *Worker) RunOnce(ctx context.Context, queue string) (bool, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	job, err := w.driver.Pop(ctx, queue, w.pollTimeout())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.process(ctx, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *Job) {
	// bookkeeping must complete even when shutdown cancels ctx mid-job
	bg := context.WithoutCancel(ctx)
	log := w.log.With(zap.String("id", job.ID), zap.String("handler", job.Handler), zap.String("queue", job.Queue))

	fn, ok := w.handler(job.Handler)
	if !ok {
		job.LastError = fmt.Sprintf("no handler registered for %q", job.Handler)
		processed.WithLabelValues(job.Queue, job.Handler, "unknown").Inc()
		log.Error("unknown job handler, burying")
		if err := w.driver.Bury(bg, job); err != nil {
			log.Error("bury failed", zap.Error(err))
		}
		return
	}

	job.Attempts++
	start := time.Now()
	err := run(ctx, fn, job)
	duration.WithLabelValues(job.Queue, job.Handler).Observe(time.Since(start).Seconds())

	if err == nil {
		processed.WithLabelValues(job.Queue, job.Handler, "done").Inc()
		log.Info("job done", zap.Int("attempt", job.Attempts))
		if err := w.driver.Ack(bg, job); err != nil {
			log.Error("ack failed", zap.Error(err))
		}
		return
	}

	job.LastError = err.Error()
	limit := job.MaxAttempts
	if limit <= 0 {
		limit = max(w.MaxAttempts, 1)
	}
	if job.Attempts >= limit {
		processed.WithLabelValues(job.Queue, job.Handler, "buried").Inc()
		log.Error("job failed permanently", zap.Int("attempt", job.Attempts), zap.Error(err))
		if err := w.driver.Bury(bg, job); err != nil {
			log.Error("bury failed", zap.Error(err))
		}
		return
	}

	delay := w.backoff(job.Attempts)
	processed.WithLabelValues(job.Queue, job.Handler, "retried").Inc()
	log.Warn("job failed, retrying", zap.Int("attempt", job.Attempts), zap.Duration("delay", delay), zap.Error(err))
	if err := w.driver.Release(bg, job, delay); err != nil {
		log.Error("release failed", zap.Error(err))
	}
}

func run(ctx context.Context, fn HandlerFunc, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, job)
}

// backoff doubles Backoff per attempt, capped at BackoffMax.
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.Backoff
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if w.BackoffMax > 0 && d >= w.BackoffMax {
			return w.BackoffMax
		}
	}
	if w.BackoffMax > 0 && d > w.BackoffMax {
		return w.BackoffMax
	}
	return d
}

func (w *Worker) pollTimeout() time.Duration {
	if w.PollTimeout <= 0 {
		return 5 * time.Second
	}
	return w.PollTimeout
}
