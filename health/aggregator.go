package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/toolgate/observe"
)

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout bounds every check run by CheckAll.
	// Default: 5 seconds
	Timeout time.Duration

	// MaxConcurrency caps how many checks run at once.
	// Default: 8
	MaxConcurrency int

	// Logger receives overall status transitions.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

// Aggregator combines multiple checkers into a single composite status.
type Aggregator struct {
	config AggregatorConfig

	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
	last     Status
	checked  bool
}

// Report is the outcome of one CheckAll run.
type Report struct {
	Status    Status
	Checks    map[string]Result
	Timestamp time.Time
}

// NewAggregator creates a new health aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	return &Aggregator{config: cfg, checkers: make(map[string]Checker)}
}

// Register adds checker under its own name, replacing any checker with the
// same name.
func (a *Aggregator) Register(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	name := checker.Name()
	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = checker
}

// CheckerNames returns registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// Check runs a single named check.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrCheckerNotFound, name)
	}
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return runCheck(ctx, checker), nil
}

// CheckAll runs every registered check concurrently and folds the results.
func (a *Aggregator) CheckAll(ctx context.Context) Report {
	a.mu.RLock()
	checkers := make([]Checker, 0, len(a.order))
	for _, name := range a.order {
		checkers = append(checkers, a.checkers[name])
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	results := make([]Result, len(checkers))
	var g errgroup.Group
	g.SetLimit(a.config.MaxConcurrency)
	for i, checker := range checkers {
		g.Go(func() error {
			results[i] = runCheck(ctx, checker)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Checks: make(map[string]Result, len(checkers)), Timestamp: time.Now()}
	for i, checker := range checkers {
		report.Checks[checker.Name()] = results[i]
	}
	report.Status = OverallStatus(report.Checks)
	a.observe(ctx, report)
	return report
}

// OverallStatus returns the worst status among results. No results means
// healthy.
func OverallStatus(results map[string]Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		if r.Status > overall {
			overall = r.Status
		}
	}
	return overall
}

func (a *Aggregator) observe(ctx context.Context, report Report) {
	a.mu.Lock()
	changed := !a.checked || a.last != report.Status
	a.last, a.checked = report.Status, true
	a.mu.Unlock()
	if !changed {
		return
	}

	fields := []observe.Field{observe.F("status", report.Status.String())}
	for name, r := range report.Checks {
		if r.Status != StatusHealthy {
			fields = append(fields, observe.F("check."+name, r.Message))
		}
	}
	if report.Status == StatusHealthy {
		a.config.Logger.Info(ctx, "health status changed", fields...)
		return
	}
	a.config.Logger.Warn(ctx, "health status changed", fields...)
}

func runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Unhealthy(fmt.Sprintf("check panicked: %v", r), ErrCheckPanicked)
			}
		}()
		done <- checker.Check(ctx)
	}()

	var result Result
	select {
	case result = <-done:
	case <-ctx.Done():
		result = Unhealthy("check timed out", ErrCheckTimeout)
	}
	result.Duration = time.Since(start)
	if result.Timestamp.IsZero() {
		result.Timestamp = start
	}
	return result
}
