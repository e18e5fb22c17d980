// Package mail defines outbound email messages and the queue job that
// delivers them. Delivery goes through a Sender; the bundled LogSender only
// records the message.
package mail

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/queue"
)

// JobName is the queue handler name for outbound email.
const JobName = "send_email"

// Message is the send_email job payload.
type Message struct {
	To      string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mail: recipient is empty")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("mail: subject is empty")
	}
	return nil
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, m Message) error {
	s.log.Info("email sent",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.Int("body_bytes", len(m.Body)))
	return nil
}

// Pusher is the producer side of a queue.
type Pusher interface {
	Push(ctx context.Context, handler string, payload any, queue ...string) (string, error)
}

// Enqueue schedules m for delivery by a worker.
func Enqueue(ctx context.Context, q Pusher, m Message) (string, error) {
	if err := m.validate(); err != nil {
		return "", err
	}
	return q.Push(ctx, JobName, m)
}

// Handler returns the worker handler for send_email jobs.
func Handler(s Sender) queue.HandlerFunc {
	return func(ctx context.Context, job *queue.Job) error {
		var m Message
		if err := job.Decode(&m); err != nil {
			return err
		}
		if err := m.validate(); err != nil {
			return err
		}
		return s.Send(ctx, m)
	}
}
