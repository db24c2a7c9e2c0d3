package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/pkg/mail"
)

type sentEvent struct {
	Room    string
	Event   string
	Payload any
}

type recordingSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recordingSender) Send(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{Room: room, Event: event, Payload: payload})
}

func (r *recordingSender) Events() []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentEvent(nil), r.events...)
}

func (r *recordingSender) Rooms(event string) []string {
	var rooms []string
	for _, evt := range r.Events() {
		if evt.Event == event {
			rooms = append(rooms, evt.Room)
		}
	}
	return rooms
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []EmailJob
}

func (q *captureQueue) Enqueue(job EmailJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

func (q *captureQueue) Jobs() []EmailJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]EmailJob(nil), q.jobs...)
}

type captureMailer struct {
	mu       sync.Mutex
	messages []mail.TemplateMessage
	err      error
	block    chan struct{}
}

func (m *captureMailer) SendTemplate(ctx context.Context, msg mail.TemplateMessage) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.err
}

func (m *captureMailer) Messages() []mail.TemplateMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.TemplateMessage(nil), m.messages...)
}

type failingStore struct {
	Store
	created int
}

func (s *failingStore) Create(_ context.Context, _ []*models.Notification) (int, error) {
	return s.created, persistenceError("notification store: create", errors.New("disk full"))
}

type failingDirectory struct{}

func (failingDirectory) ActiveUserIDsByRole(context.Context, string) ([]string, error) {
	return nil, errors.New("directory offline")
}

func (failingDirectory) Lookup(context.Context, []string) (map[string]models.User, error) {
	return nil, errors.New("directory offline")
}

// stalledSender blocks every Send until Release, like a transport whose peer never answers.
type stalledSender struct {
	recordingSender
	release chan struct{}
	once    sync.Once
}

func newStalledSender() *stalledSender {
	return &stalledSender{release: make(chan struct{})}
}

func (s *stalledSender) Send(room, event string, payload any) {
	<-s.release
	s.recordingSender.Send(room, event, payload)
}

func (s *stalledSender) Release() {
	s.once.Do(func() { close(s.release) })
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
