package realtime

import (
	"sync"

	"github.com/roadwatch/roadwatch/internal/monitoring"
)

// Sender delivers an event to every connection currently in a room. Implementations never
// fail: an empty room or unavailable transport is a silent no-op.
type Sender interface {
	Send(room, event string, payload any)
}

// Handle is the process-wide reference to the realtime transport. It is created before the
// HTTP listener exists and attached once the gateway is serving; until then every send is
// dropped.
type Handle struct {
	mu     sync.RWMutex
	target Sender
}

// NewHandle returns an unattached handle.
func NewHandle() *Handle {
	return &Handle{}
}

// Attach wires the live transport. Attaching nil detaches it again.
func (h *Handle) Attach(target Sender) {
	h.mu.Lock()
	h.target = target
	h.mu.Unlock()
}

// Ready reports whether a transport has been attached.
func (h *Handle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.target != nil
}

// Send forwards to the attached transport, or does nothing before Attach.
func (h *Handle) Send(room, event string, payload any) {
	h.mu.RLock()
	target := h.target
	h.mu.RUnlock()

	if target == nil {
		monitoring.RecordRealtimeSend(event, monitoring.SendUnavailable)
		return
	}
	target.Send(room, event, payload)
}
