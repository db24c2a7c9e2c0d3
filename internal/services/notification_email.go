package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roadwatch/roadwatch/internal/monitoring"
	"github.com/roadwatch/roadwatch/pkg/logger"
	"github.com/roadwatch/roadwatch/pkg/mail"
)

// EmailJob is one templated email queued for delivery.
type EmailJob struct {
	NotificationID string
	To             string
	Subject        string
	Template       string
	Context        map[string]any
}

// EmailQueue accepts email jobs without blocking. Enqueue reports false when the job was
// discarded.
type EmailQueue interface {
	Enqueue(job EmailJob) bool
}

// TemplateMailer renders and sends a templated message.
type TemplateMailer interface {
	SendTemplate(ctx context.Context, msg mail.TemplateMessage) error
}

// EmailOption configures an EmailDispatcher.
type EmailOption func(*EmailDispatcher)

// WithEmailWorkers sets the number of concurrent senders.
func WithEmailWorkers(n int) EmailOption {
	return func(d *EmailDispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithEmailQueueSize bounds the number of pending jobs.
func WithEmailQueueSize(n int) EmailOption {
	return func(d *EmailDispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithEmailTimeout bounds a single send.
func WithEmailTimeout(timeout time.Duration) EmailOption {
	return func(d *EmailDispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// EmailDispatcher delivers notification emails on a bounded worker pool. A full queue drops
// the job; failures are logged and never reach the caller.
type EmailDispatcher struct {
	mailer    TemplateMailer
	workers   int
	queueSize int
	timeout   time.Duration
	log       *zap.Logger

	mu      sync.RWMutex
	queue   chan EmailJob
	started bool
	closed  bool
	wg      sync.WaitGroup
}

var _ EmailQueue = (*EmailDispatcher)(nil)

// NewEmailDispatcher constructs a dispatcher; call Start before enqueuing.
func NewEmailDispatcher(mailer TemplateMailer, opts ...EmailOption) (*EmailDispatcher, error) {
	if mailer == nil {
		return nil, errors.New("email dispatcher: mailer is required")
	}
	d := &EmailDispatcher{
		mailer:    mailer,
		workers:   2,
		queueSize: 256,
		timeout:   30 * time.Second,
		log:       logger.WithModule("notifications.email"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan EmailJob, d.queueSize)
	return d, nil
}

// Start launches the worker pool. Calling Start twice is a no-op.
func (d *EmailDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Enqueue implements EmailQueue.
func (d *EmailDispatcher) Enqueue(job EmailJob) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		monitoring.RecordEmailDispatch(monitoring.EmailDropped)
		return false
	}

	select {
	case d.queue <- job:
		return true
	default:
		d.log.Warn("email queue full; dropping job",
			zap.String("notification_id", job.NotificationID),
			zap.String("template", job.Template),
		)
		monitoring.RecordEmailDispatch(monitoring.EmailDropped)
		return false
	}
}

// Stop closes the queue and waits for queued jobs to drain or ctx to expire.
func (d *EmailDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	ctx = ensureContext(ctx)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *EmailDispatcher) work() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *EmailDispatcher) deliver(job EmailJob) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("email delivery panicked", zap.Any("panic", rec), zap.String("notification_id", job.NotificationID))
			monitoring.RecordEmailDispatch(monitoring.EmailFailed)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.mailer.SendTemplate(ctx, mail.TemplateMessage{
		To:       job.To,
		Subject:  job.Subject,
		Template: job.Template,
		Context:  job.Context,
	})
	switch {
	case errors.Is(err, mail.ErrSMTPDisabled):
		monitoring.RecordEmailDispatch(monitoring.EmailSkipped)
	case err != nil:
		d.log.Warn("email delivery failed",
			zap.String("notification_id", job.NotificationID),
			zap.String("template", job.Template),
			zap.Error(err),
		)
		monitoring.RecordEmailDispatch(monitoring.EmailFailed)
	default:
		monitoring.RecordEmailDispatch(monitoring.EmailSent)
	}
}
