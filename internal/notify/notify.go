// Package notify hands account emails to an out-of-process delivery
// worker through the message queue. Sending is best effort: the API
// never waits on delivery and a failed publish only produces a log line.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/taskhub/apiserver/config"
	"github.com/taskhub/apiserver/internal/mq"
)

// SendTimeout bounds a single fire-and-forget publish.
const SendTimeout = 5 * time.Second

const (
	templateWelcome      = "welcome"
	templateCancellation = "cancellation"
)

// Mailer sends account lifecycle emails.
type Mailer interface {
	SendWelcome(ctx context.Context, to, name string) error
	SendCancellation(ctx context.Context, to, name string) error
}

// EmailJob is the payload handed to the delivery worker.
type EmailJob struct {
	Template string `json:"template"`
	To       string `json:"to"`
	Name     string `json:"name"`
	From     string `json:"from"`
}

// QueueMailer publishes email jobs to a broker channel.
type QueueMailer struct {
	queue   *mq.MQ
	channel string
	from    string
}

func NewQueueMailer(queue *mq.MQ, cfg config.NotifyConfig) *QueueMailer {
	return &QueueMailer{
		queue:   queue,
		channel: cfg.Channel,
		from:    cfg.From,
	}
}

func (m *QueueMailer) SendWelcome(ctx context.Context, to, name string) error {
	return m.publish(ctx, templateWelcome, to, name)
}

func (m *QueueMailer) SendCancellation(ctx context.Context, to, name string) error {
	return m.publish(ctx, templateCancellation, to, name)
}

func (m *QueueMailer) publish(ctx context.Context, template, to, name string) error {
	job := EmailJob{
		Template: template,
		To:       to,
		Name:     name,
		From:     m.from,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = m.queue.Publish(ctx, m.channel, data, map[string]string{"template": template})
	return err
}

// Consume drains email jobs from the broker channel and hands each
// decoded job to deliver. A decode or delivery failure nacks the
// message so the broker can redeliver it.
func Consume(ctx context.Context, queue *mq.MQ, channel string, deliver func(ctx context.Context, job EmailJob) error) error {
	return queue.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		var job EmailJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			return fmt.Errorf("decode email job %s: %w", msg.ID, err)
		}
		return deliver(ctx, job)
	})
}

// NoopMailer is used when no broker is configured.
type NoopMailer struct{}

func (NoopMailer) SendWelcome(context.Context, string, string) error      { return nil }
func (NoopMailer) SendCancellation(context.Context, string, string) error { return nil }

// Dispatch runs a send in the background, detached from the request
// context, and logs any failure.
func Dispatch(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("notify: %v", err)
		}
	}()
}
