package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPDriver stores jobs in RabbitMQ. Each queue name gets three durable
// queues:
//
//	<queue>        ready jobs, claimed with basic.get and manual ack
//	<queue>.retry  delayed jobs; per-message TTL dead-letters them back to <queue>
//	<queue>.dead   dead letters
type AMQPDriver struct {
	url string
	log *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	gen      uint64 // bumped for every new channel; delivery tags are per channel
	declared map[string]bool

	pollInterval time.Duration
	dialTimeout  time.Duration
}

// errStaleDelivery reports a job claimed on a channel that has since closed.
// The broker requeues such deliveries by itself.
var errStaleDelivery = errors.New("amqp: delivery belongs to a closed channel, broker will redeliver")

func NewAMQPDriver(url string, log *zap.Logger) *AMQPDriver {
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPDriver{
		url:          url,
		log:          log,
		declared:     map[string]bool{},
		pollInterval: 250 * time.Millisecond,
		dialTimeout:  5 * time.Second,
	}
}

func retryQueue(q string) string { return q + ".retry" }
func deadQueue(q string) string  { return q + ".dead" }

// retryArgs routes expired messages from the retry queue back to queue
// through the default exchange.
func retryArgs(queue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

// expiration formats a per-message TTL in milliseconds.
func expiration(delay time.Duration) string {
	ms := delay.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}

// channelLocked returns an open channel, dialing at most once per call,
// bounded by dialTimeout and the ctx deadline. d.mu must be held.
func (d *AMQPDriver) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if d.ch != nil && !d.ch.IsClosed() {
		return d.ch, nil
	}
	d.resetLocked()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("amqp connect: %w", err)
	}

	timeout := d.dialTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	conn, err := amqp.DialConfig(d.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		d.log.Warn("amqp connect failed", zap.Error(err))
		return nil, fmt.Errorf("amqp connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	d.conn, d.ch = conn, ch
	d.gen++
	d.declared = map[string]bool{}
	return ch, nil
}

func (d *AMQPDriver) resetLocked() {
	if d.ch != nil {
		_ = d.ch.Close()
	}
	if d.conn != nil && !d.conn.IsClosed() {
		_ = d.conn.Close()
	}
	d.ch, d.conn = nil, nil
}

func (d *AMQPDriver) declareLocked(ch *amqp.Channel, queue string) error {
	if d.declared[queue] {
		return nil
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", queue, err)
	}
	if _, err := ch.QueueDeclare(retryQueue(queue), true, false, false, false, retryArgs(queue)); err != nil {
		return fmt.Errorf("queue declare %s: %w", retryQueue(queue), err)
	}
	if _, err := ch.QueueDeclare(deadQueue(queue), true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", deadQueue(queue), err)
	}
	d.declared[queue] = true
	return nil
}

func (d *AMQPDriver) publishLocked(ctx context.Context, routingKey string, job *Job, exp string) error {
	ch, err := d.channelLocked(ctx)
	if err != nil {
		return err
	}
	if err := d.declareLocked(ch, job.Queue); err != nil {
		return err
	}
	body, err := encodeJob(job)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    job.ID,
		Expiration:   exp,
		Body:         body,
	})
}

func (d *AMQPDriver) Push(ctx context.Context, job *Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if delay := time.Until(job.AvailableAt); delay > 0 {
		return d.publishLocked(ctx, retryQueue(job.Queue), job, expiration(delay))
	}
	return d.publishLocked(ctx, job.Queue, job, "")
}

// Pop polls with basic.get until a message arrives or timeout elapses.
func (d *AMQPDriver) Pop(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := d.tryGet(ctx, queue)
		if err != nil || job != nil {
			return job, err
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

func (d *AMQPDriver) tryGet(ctx context.Context, queue string) (*Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, err := d.channelLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.declareLocked(ch, queue); err != nil {
		d.resetLocked()
		return nil, err
	}
	msg, ok, err := ch.Get(queue, false)
	if err != nil {
		d.resetLocked()
		return nil, fmt.Errorf("amqp get %s: %w", queue, err)
	}
	if !ok {
		return nil, nil
	}

	job, err := decodeJob(msg.Body)
	if err != nil {
		d.log.Error("dead-lettering malformed job", zap.String("queue", queue), zap.Error(err))
		_ = ch.PublishWithContext(ctx, "", deadQueue(queue), false, false, amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Body:         msg.Body,
		})
		_ = msg.Ack(false)
		return nil, nil
	}
	job.tag = msg.DeliveryTag
	job.gen = d.gen
	if job.Queue == "" {
		job.Queue = queue
	}
	return job, nil
}

// staleLocked reports whether job's delivery tag no longer refers to the
// open channel.
func (d *AMQPDriver) staleLocked(job *Job) bool {
	return d.ch == nil || d.ch.IsClosed() || job.gen != d.gen
}

func (d *AMQPDriver) ackLocked(job *Job) error {
	if d.staleLocked(job) {
		return errStaleDelivery
	}
	return d.ch.Ack(job.tag, false)
}

func (d *AMQPDriver) Ack(_ context.Context, job *Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ackLocked(job)
}

// Release republishes the updated job to the retry queue, then acks the
// original delivery.
func (d *AMQPDriver) Release(ctx context.Context, job *Job, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.staleLocked(job) {
		return errStaleDelivery
	}
	job.AvailableAt = time.Now().Add(delay).UTC()
	var err error
	if delay > 0 {
		err = d.publishLocked(ctx, retryQueue(job.Queue), job, expiration(delay))
	} else {
		err = d.publishLocked(ctx, job.Queue, job, "")
	}
	if err != nil {
		return err
	}
	return d.ackLocked(job)
}

func (d *AMQPDriver) Bury(ctx context.Context, job *Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.staleLocked(job) {
		return errStaleDelivery
	}
	at := time.Now().UTC()
	job.FailedAt = &at
	if err := d.publishLocked(ctx, deadQueue(job.Queue), job, ""); err != nil {
		return err
	}
	return d.ackLocked(job)
}

func (d *AMQPDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	return nil
}
