package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/pkg/jobs"
	"github.com/noah-isme/learnhub-api/pkg/mailer"
	"github.com/noah-isme/learnhub-api/pkg/observability"
	"github.com/noah-isme/learnhub-api/pkg/telegram"
)

// Notification channels.
const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

// EmailNotification describes a templated email to deliver asynchronously.
type EmailNotification struct {
	To       string
	Subject  string
	Template string
	Data     map[string]string
}

// Notifier is the fire-and-forget dispatch surface used by domain services.
// Errors only report that the job could not be queued.
type Notifier interface {
	NotifyEmail(msg EmailNotification) error
	NotifyAdmins(text string) error
}

type mailRenderer interface {
	Render(name, to, subject string, data interface{}) (mailer.Message, error)
}

// NotificationConfig tunes the dispatch queue.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// NotificationService renders and delivers notifications on a bounded worker
// pool with retries and a dead-letter hook.
type NotificationService struct {
	queue    *jobs.Queue
	sender   mailer.Sender
	renderer mailRenderer
	alerts   telegram.Notifier
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService wires the queue. Call Start before enqueueing.
func NewNotificationService(sender mailer.Sender, renderer mailRenderer, alerts telegram.Notifier, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if alerts == nil {
		alerts = telegram.NopNotifier{}
	}
	s := &NotificationService{sender: sender, renderer: renderer, alerts: alerts, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		DeadLetter: s.deadLetter,
		Logger:     logger,
	})
	return s
}

// Start launches the workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains queued notifications until ctx expires.
func (s *NotificationService) Stop(ctx context.Context) {
	s.queue.Stop(ctx)
}

// NotifyEmail implements Notifier.
func (s *NotificationService) NotifyEmail(msg EmailNotification) error {
	if msg.To == "" {
		return fmt.Errorf("email notification without recipient")
	}
	return s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: ChannelEmail, Payload: msg})
}

// NotifyAdmins implements Notifier.
func (s *NotificationService) NotifyAdmins(text string) error {
	return s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: ChannelTelegram, Payload: text})
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	var err error
	switch job.Type {
	case ChannelEmail:
		msg, ok := job.Payload.(EmailNotification)
		if !ok {
			return fmt.Errorf("unexpected email payload %T", job.Payload)
		}
		err = s.deliverEmail(ctx, msg)
	case ChannelTelegram:
		text, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected alert payload %T", job.Payload)
		}
		err = s.alerts.Notify(ctx, text)
	default:
		return fmt.Errorf("unknown notification type %q", job.Type)
	}
	s.metrics.RecordNotification(job.Type, err)
	if err != nil {
		s.logger.Warn("notification attempt failed",
			zap.String("job_id", job.ID),
			zap.String("channel", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
	}
	return err
}

func (s *NotificationService) deliverEmail(ctx context.Context, n EmailNotification) error {
	msg, err := s.renderer.Render(n.Template, n.To, n.Subject, n.Data)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, msg)
}

func (s *NotificationService) deadLetter(job jobs.Job, err error) {
	s.metrics.RecordDeadLetter(job.Type)
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("channel", job.Type),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	}
	if msg, ok := job.Payload.(EmailNotification); ok {
		fields = append(fields, zap.String("to", msg.To), zap.String("template", msg.Template))
	}
	s.logger.Error("notification dropped", fields...)
	observability.CaptureWithTags(err, map[string]string{"channel": job.Type, "job_id": job.ID})
}
