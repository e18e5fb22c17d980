package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// popScript returns due delayed jobs and expired reservations to the ready
// list, then claims the oldest ready job under a lease.
//
// KEYS[1] = ready list
// KEYS[2] = reserved zset (scored by lease expiry, unix ms)
// KEYS[3] = delayed zset (scored by availability, unix ms)
// ARGV[1] = now (unix ms)
// ARGV[2] = lease expiry for the claimed job (unix ms)
var popScript = redis.NewScript(`
local function requeue(src)
  local due = redis.call('ZRANGEBYSCORE', src, '-inf', ARGV[1], 'LIMIT', 0, 100)
  for _, v in ipairs(due) do
    redis.call('ZREM', src, v)
    redis.call('LPUSH', KEYS[1], v)
  end
end
requeue(KEYS[3])
requeue(KEYS[2])
local job = redis.call('RPOP', KEYS[1])
if not job then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[2], job)
return job
`)

// DefaultLease bounds how long a claimed job may run before another consumer
// may take it over.
const DefaultLease = 5 * time.Minute

// RedisDriver keeps one list per queue. Pop claims a job atomically and
// records its lease; a job whose worker died before Ack, Release or Bury
// becomes ready again once the lease expires.
//
//	<prefix>:<queue>             ready
//	<prefix>:<queue>:reserved    zset of claimed jobs scored by lease expiry (unix ms)
//	<prefix>:<queue>:delayed     zset scored by availability (unix ms)
//	<prefix>:<queue>:failed      dead letters
type RedisDriver struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
	now    func() time.Time

	// Lease must exceed the longest handler run.
	Lease        time.Duration
	pollInterval time.Duration
}

func NewRedisDriver(rdb *redis.Client, prefix string, log *zap.Logger) *RedisDriver {
	if prefix == "" {
		prefix = "queues"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisDriver{
		rdb:          rdb,
		prefix:       prefix,
		log:          log,
		now:          time.Now,
		Lease:        DefaultLease,
		pollInterval: 100 * time.Millisecond,
	}
}

func (d *RedisDriver) key(queue, suffix string) string {
	k := d.prefix + ":" + queue
	if suffix != "" {
		k += ":" + suffix
	}
	return k
}

func (d *RedisDriver) Push(ctx context.Context, job *Job) error {
	b, err := encodeJob(job)
	if err != nil {
		return err
	}
	if job.AvailableAt.After(d.now()) {
		return d.rdb.ZAdd(ctx, d.key(job.Queue, "delayed"), redis.Z{
			Score:  float64(job.AvailableAt.UnixMilli()),
			Member: b,
		}).Err()
	}
	return d.rdb.LPush(ctx, d.key(job.Queue, ""), b).Err()
}

// Pop polls the claim script until a job is claimed or timeout elapses.
func (d *RedisDriver) Pop(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	keys := []string{d.key(queue, ""), d.key(queue, "reserved"), d.key(queue, "delayed")}
	lease := d.Lease
	if lease <= 0 {
		lease = DefaultLease
	}
	deadline := time.Now().Add(timeout)

	for {
		now := d.now()
		raw, err := popScript.Run(ctx, d.rdb, keys,
			strconv.FormatInt(now.UnixMilli(), 10),
			strconv.FormatInt(now.Add(lease).UnixMilli(), 10)).Text()
		if err == nil {
			return d.claimed(ctx, queue, raw), nil
		}
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("queue: pop %s: %w", queue, err)
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// claimed decodes a claimed entry. An undecodable entry can never succeed
// and goes straight to the failed list.
func (d *RedisDriver) claimed(ctx context.Context, queue, raw string) *Job {
	job, err := decodeJob([]byte(raw))
	if err != nil {
		d.log.Error("dropping malformed job", zap.String("queue", queue), zap.Error(err))
		pipe := d.rdb.TxPipeline()
		pipe.ZRem(ctx, d.key(queue, "reserved"), raw)
		pipe.LPush(ctx, d.key(queue, "failed"), raw)
		_, _ = pipe.Exec(ctx)
		return nil
	}
	job.raw = raw
	job.Queue = queue
	return job
}

func (d *RedisDriver) Ack(ctx context.Context, job *Job) error {
	return d.rdb.ZRem(ctx, d.key(job.Queue, "reserved"), job.raw).Err()
}

func (d *RedisDriver) Release(ctx context.Context, job *Job, delay time.Duration) error {
	job.AvailableAt = d.now().Add(delay).UTC()
	b, err := encodeJob(job)
	if err != nil {
		return err
	}
	pipe := d.rdb.TxPipeline()
	pipe.ZRem(ctx, d.key(job.Queue, "reserved"), job.raw)
	pipe.ZAdd(ctx, d.key(job.Queue, "delayed"), redis.Z{
		Score:  float64(job.AvailableAt.UnixMilli()),
		Member: b,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (d *RedisDriver) Bury(ctx context.Context, job *Job) error {
	at := d.now().UTC()
	job.FailedAt = &at
	b, err := encodeJob(job)
	if err != nil {
		return err
	}
	pipe := d.rdb.TxPipeline()
	pipe.ZRem(ctx, d.key(job.Queue, "reserved"), job.raw)
	pipe.LPush(ctx, d.key(job.Queue, "failed"), b)
	_, err = pipe.Exec(ctx)
	return err
}

// Failed lists up to limit dead-lettered jobs, newest first.
func (d *RedisDriver) Failed(ctx context.Context, queue string, limit int64) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := d.rdb.LRange(ctx, d.key(queue, "failed"), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(raws))
	for _, r := range raws {
		j, err := decodeJob([]byte(r))
		if err != nil {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// Close leaves the client open; its owner closes it.
func (d *RedisDriver) Close() error { return nil }
