package store

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"
)

const defaultCheckTimeout = 5 * time.Second

// CheckResult is the outcome of one adapter health check.
type CheckResult struct {
	Name     string        `json:"name"`
	Healthy  bool          `json:"healthy"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthReport aggregates the checks of every adapter an application opened.
type HealthReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []CheckResult `json:"checks"`
}

// Checks runs adapter health checks concurrently, each bounded by its own timeout.
type Checks struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	timeout  time.Duration
}

// NewChecks creates an empty set of checks. A non-positive timeout falls back to five seconds.
func NewChecks(timeout time.Duration) *Checks {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Checks{adapters: make(map[string]Adapter), timeout: timeout}
}

// Add registers adapter under name, replacing any adapter already registered with that name.
// A nil adapter is ignored so an unconfigured document store can be passed as is.
func (c *Checks) Add(name string, adapter Adapter) {
	if isNilAdapter(adapter) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[name] = adapter
}

// Run checks every registered adapter. The report is healthy only when every check passed;
// results are ordered by name.
func (c *Checks) Run(ctx context.Context) HealthReport {
	c.mu.RLock()
	adapters := make(map[string]Adapter, len(c.adapters))
	for name, a := range c.adapters {
		adapters[name] = a
	}
	c.mu.RUnlock()

	results := make(chan CheckResult, len(adapters))
	var wg sync.WaitGroup
	for name, a := range adapters {
		wg.Add(1)
		go func(name string, a Adapter) {
			defer wg.Done()
			results <- c.check(ctx, name, a)
		}(name, a)
	}
	wg.Wait()
	close(results)

	report := HealthReport{Healthy: true}
	for r := range results {
		report.Checks = append(report.Checks, r)
		if !r.Healthy {
			report.Healthy = false
		}
	}
	sort.Slice(report.Checks, func(i, j int) bool { return report.Checks[i].Name < report.Checks[j].Name })
	return report
}

func (c *Checks) check(ctx context.Context, name string, a Adapter) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := a.HealthCheck(ctx)
	res := CheckResult{Name: name, Healthy: err == nil, Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func isNilAdapter(a Adapter) bool {
	if a == nil {
		return true
	}
	v := reflect.ValueOf(a)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
