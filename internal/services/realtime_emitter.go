package services

import (
	"sync"

	"go.uber.org/zap"

	"github.com/roadwatch/roadwatch/internal/realtime"
)

// emitter runs realtime sends off the caller's goroutine. Callers never wait on the
// transport; wait blocks until every scheduled emission has finished.
type emitter struct {
	sender realtime.Sender
	log    *zap.Logger
	wg     sync.WaitGroup
}

func newEmitter(sender realtime.Sender, log *zap.Logger) *emitter {
	return &emitter{sender: sender, log: log}
}

// async schedules fn with the emitter's sender. A panic inside fn is logged and swallowed.
func (e *emitter) async(label string, fn func(sender realtime.Sender)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				e.log.Error("realtime emit panicked", zap.String("event", label), zap.Any("panic", rec))
			}
		}()
		fn(e.sender)
	}()
}

func (e *emitter) wait() {
	e.wg.Wait()
}
