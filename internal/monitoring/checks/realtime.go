package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/roadwatch/roadwatch/internal/monitoring"
)

// RealtimeObserver reports whether the websocket gateway is attached.
type RealtimeObserver interface {
	Ready() bool
}

// Realtime degrades readiness until the gateway is attached and reports live connections
// and drops once it is.
func Realtime(observer RealtimeObserver) monitoring.Check {
	return monitoring.Check{
		Name:  "realtime",
		Scope: monitoring.Readiness,
		Run: func(context.Context) monitoring.ProbeResult {
			start := time.Now()
			if observer == nil || !observer.Ready() {
				return down("realtime gateway not attached", start)
			}
			stats := monitoring.Snapshot().Realtime
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  fmt.Sprintf("%d connections, %d dropped", stats.ActiveConnections, stats.Failures),
				Duration: time.Since(start),
			}
		},
	}
}
