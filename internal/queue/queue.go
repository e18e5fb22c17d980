package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Queue is the producer side used by request handlers.
type Queue struct {
	driver Driver
	log    *zap.Logger
	now    func() time.Time
}

func New(d Driver, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{driver: d, log: log, now: time.Now}
}

// Push enqueues handler with payload on the named queue ("default" when
// omitted) and returns the job id. It never runs the job inline.
func (q *Queue) Push(ctx context.Context, handler string, payload any, queue ...string) (string, error) {
	name := DefaultQueue
	if len(queue) > 0 && queue[0] != "" {
		name = queue[0]
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: encode %s payload: %w", handler, err)
	}
	now := q.now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Handler:     handler,
		Payload:     body,
		Queue:       name,
		AvailableAt: now,
		CreatedAt:   now,
	}
	if err := q.driver.Push(ctx, job); err != nil {
		q.log.Error("job push failed", zap.String("handler", handler), zap.String("queue", name), zap.Error(err))
		return "", err
	}
	pushed.WithLabelValues(name, handler).Inc()
	q.log.Debug("job pushed", zap.String("id", job.ID), zap.String("handler", handler), zap.String("queue", name))
	return job.ID, nil
}
