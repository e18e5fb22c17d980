package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/apperr"
	"github.com/iliyamo/restkit/internal/config"
)

// Driver is a durable queue store. Pop claims a job for exactly one consumer
// until it is acknowledged, released or buried.
type Driver interface {
	Push(ctx context.Context, job *Job) error
	// Pop blocks up to timeout and returns nil, nil when nothing is ready.
	Pop(ctx context.Context, queue string, timeout time.Duration) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	// Release makes the job available again after delay.
	Release(ctx context.Context, job *Job, delay time.Duration) error
	// Bury moves the job to the queue's dead-letter store.
	Bury(ctx context.Context, job *Job) error
	Close() error
}

// NewDriver picks the store named by cfg.Driver. The Redis driver needs rdb.
func NewDriver(cfg config.QueueConfig, rdb *redis.Client, log *zap.Logger) (Driver, error) {
	switch cfg.Driver {
	case "amqp", "rabbitmq":
		return NewAMQPDriver(cfg.AMQPURL, log), nil
	case "", "redis":
		if rdb == nil {
			return nil, apperr.Configuration("queue: redis driver selected but redis is unavailable")
		}
		d := NewRedisDriver(rdb, cfg.Prefix, log)
		if cfg.Lease > 0 {
			d.Lease = cfg.Lease
		}
		return d, nil
	default:
		return nil, apperr.Configuration("queue: unknown driver %q", cfg.Driver)
	}
}
