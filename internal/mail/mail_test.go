package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/restkit/internal/config"
	"github.com/iliyamo/restkit/internal/queue"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, m Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func newQueue(t *testing.T) (*queue.Queue, *queue.Worker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	d := queue.NewRedisDriver(rdb, "queues", nil)
	w := queue.NewWorker(d, config.QueueConfig{MaxAttempts: 2, PollTimeout: time.Second, Concurrency: 1}, nil)
	return queue.New(d, nil), w, mr
}

func TestEnqueue_DeliveredByWorker(t *testing.T) {
	q, w, _ := newQueue(t)
	sender := &recordingSender{}
	w.Handle(JobName, Handler(sender))
	ctx := context.Background()

	if _, err := Enqueue(ctx, q, Welcome("restkit", "ada@example.com")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("message delivered before a worker ran")
	}

	if ok, err := w.RunOnce(ctx, queue.DefaultQueue); !ok || err != nil {
		t.Fatalf("RunOnce() = %v, %v", ok, err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.To != "ada@example.com" || got.Subject != "Welcome to restkit" {
		t.Errorf("message = %+v", got)
	}
}

func TestHandler_FailuresAreRetriedThenBuried(t *testing.T) {
	q, w, mr := newQueue(t)
	w.Handle(JobName, Handler(&recordingSender{err: errors.New("smtp down")}))
	ctx := context.Background()

	if _, err := Enqueue(ctx, q, Welcome("restkit", "ada@example.com")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := w.RunOnce(ctx, queue.DefaultQueue); err != nil {
			t.Fatal(err)
		}
	}
	failed, err := mr.List("queues:default:failed")
	if err != nil || len(failed) != 1 {
		t.Fatalf("failed list = %v, %v", failed, err)
	}
	if !strings.Contains(failed[0], "smtp down") {
		t.Errorf("dead job lacks the error: %s", failed[0])
	}
}

func TestEnqueue_RejectsIncompleteMessages(t *testing.T) {
	q, _, mr := newQueue(t)
	if _, err := Enqueue(context.Background(), q, Message{Subject: "hi"}); err == nil {
		t.Error("expected an error for a missing recipient")
	}
	if mr.Exists("queues:default") {
		t.Error("invalid message was queued")
	}
}

func TestPasswordReset_Link(t *testing.T) {
	m := PasswordReset("restkit", "http://localhost:3000", "a+b@example.com", "abc123")
	if !strings.Contains(m.Body, "http://localhost:3000/reset-password?token=abc123&email=a%2Bb%40example.com") {
		t.Errorf("body = %s", m.Body)
	}
	if m.Subject != "Password Reset Request - restkit" {
		t.Errorf("subject = %q", m.Subject)
	}
}
