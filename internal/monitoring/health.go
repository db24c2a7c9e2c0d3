package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ProbeStatus is the outcome of one health check or of a whole report.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDegraded ProbeStatus = "degraded"
	StatusDown     ProbeStatus = "down"
)

func (s ProbeStatus) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// ProbeResult is one component's entry in a HealthReport.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Critical  bool          `json:"critical"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport is the evaluation of every check registered for a scope.
type HealthReport struct {
	Success   bool          `json:"success"`
	Status    ProbeStatus   `json:"status"`
	Checks    []ProbeResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Scope selects which reports a check contributes to.
type Scope uint8

const (
	Liveness Scope = 1 << iota
	Readiness
)

const defaultCheckTimeout = 3 * time.Second

// Check is a registered health check. Only critical checks can take a report down; a failing
// non-critical check (realtime, redis, retention) leaves the report degraded because the
// notification store stays authoritative without them.
type Check struct {
	Name     string
	Scope    Scope
	Critical bool
	Timeout  time.Duration
	Run      func(ctx context.Context) ProbeResult
}

// Health holds the probes of the notification service.
type Health struct {
	mu     sync.RWMutex
	checks []Check
}

// NewHealth returns an empty registry.
func NewHealth() *Health {
	return &Health{}
}

// Register adds checks. Unnamed checks or checks without a Run function are ignored; a zero
// Scope registers for readiness.
func (h *Health) Register(checks ...Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, check := range checks {
		if check.Name == "" || check.Run == nil {
			continue
		}
		if check.Scope == 0 {
			check.Scope = Readiness
		}
		h.checks = append(h.checks, check)
	}
}

// Liveness evaluates checks registered for the liveness scope.
func (h *Health) Liveness(ctx context.Context) HealthReport {
	return h.evaluate(ctx, Liveness)
}

// Readiness evaluates checks registered for the readiness scope.
func (h *Health) Readiness(ctx context.Context) HealthReport {
	return h.evaluate(ctx, Readiness)
}

func (h *Health) evaluate(ctx context.Context, scope Scope) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	h.mu.RLock()
	selected := make([]Check, 0, len(h.checks))
	for _, check := range h.checks {
		if check.Scope&scope != 0 {
			selected = append(selected, check)
		}
	}
	h.mu.RUnlock()

	results := make([]ProbeResult, len(selected))
	var wg sync.WaitGroup
	for i, check := range selected {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runCheck(ctx, check)
		}()
	}
	wg.Wait()

	report := HealthReport{Status: StatusUp, Checks: results, CheckedAt: time.Now().UTC()}
	for _, result := range results {
		if result.Status.rank() > report.Status.rank() {
			report.Status = result.Status
		}
	}
	report.Success = report.Status == StatusUp
	return report
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		result.Component = check.Name
		result.Critical = check.Critical
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Status == StatusDown && !check.Critical {
			result.Status = StatusDegraded
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
	}()
	return check.Run(ctx)
}

// ResultFromError maps a check error to a result. Timeouts count as degraded.
func ResultFromError(err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	switch {
	case err == nil:
		return ProbeResult{Status: StatusUp, Duration: duration}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ProbeResult{Status: StatusDegraded, Details: err.Error(), Duration: duration}
	default:
		return ProbeResult{Status: StatusDown, Details: err.Error(), Duration: duration}
	}
}
