package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

const defaultProbeTimeout = 2 * time.Second

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// HealthReport aggregates probe results.
type HealthReport struct {
	Success   bool          `json:"success"`
	Status    ProbeStatus   `json:"status"`
	Checks    []ProbeResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Probe returns a human readable detail on success, or the failure.
type Probe func(ctx context.Context) (string, error)

// Check is a named probe. A failing critical check takes the service down; any other
// failing check only degrades it.
type Check struct {
	Name     string
	Critical bool
	Probe    Probe
}

// HealthManager runs the registered checks concurrently, each under its own timeout.
type HealthManager struct {
	mu      sync.RWMutex
	checks  []Check
	timeout time.Duration
	now     func() time.Time
}

// NewHealthManager constructs an empty manager. A non-positive timeout falls back to two seconds.
func NewHealthManager(timeout time.Duration) *HealthManager {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HealthManager{timeout: timeout, now: time.Now}
}

// Register appends a check. Unnamed checks or checks without a probe are ignored.
func (m *HealthManager) Register(check Check) {
	if check.Name == "" || check.Probe == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check)
}

// Evaluate runs every check and folds the results into one report, in registration order.
func (m *HealthManager) Evaluate(ctx context.Context) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.RLock()
	checks := append([]Check(nil), m.checks...)
	m.mu.RUnlock()

	results := make([]ProbeResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = m.run(ctx, check)
		}(i, check)
	}
	wg.Wait()

	report := HealthReport{
		Success:   true,
		Status:    StatusUp,
		Checks:    results,
		CheckedAt: m.now().UTC(),
	}
	for _, r := range results {
		switch r.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	report.Success = report.Status != StatusDown
	return report
}

func (m *HealthManager) run(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			result = failure(check, fmt.Errorf("panic: %v", rec))
		}
		result.Component = check.Name
		result.Duration = time.Since(start)
	}()

	details, err := check.Probe(probeCtx)
	if err != nil {
		return failure(check, err)
	}
	return ProbeResult{Status: StatusUp, Details: details}
}

// failure maps an error to a status. Timeouts degrade instead of failing outright.
func failure(check Check, err error) ProbeResult {
	status := StatusDegraded
	if check.Critical && !errors.Is(err, context.DeadlineExceeded) {
		status = StatusDown
	}
	return ProbeResult{Status: status, Details: err.Error()}
}
