// Package handlers holds the checks behind /healthz and /readyz.
//
//	checker := handlers.NewChecker(version)
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("store", handlers.NewStoreReadyCheck(store))
//	checker.AddOptionalCheck("snapshots", handlers.NewSnapshotFreshnessCheck(repo, 3*time.Hour, time.Now))
//
// Any failing check makes the worker unhealthy. Only required checks make it
// unready.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
)

// checkTimeout bounds every single check.
const checkTimeout = 5 * time.Second

// HealthChecker reports the state of the worker.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc returns nil when the dependency is fine.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Healthy     bool      `json:"healthy"`
	Required    bool      `json:"required"`
	Message     string    `json:"message,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKER
// ══════════════════════════════════════════════════════════════════════════════

type namedCheck struct {
	name     string
	fn       HealthCheckFunc
	required bool
}

// Checker runs its checks in parallel. Safe for concurrent use.
type Checker struct {
	mu        sync.RWMutex
	checks    []namedCheck
	startedAt time.Time
	version   string
}

// NewChecker creates a checker without checks.
func NewChecker(version string) *Checker {
	return &Checker{startedAt: time.Now(), version: version}
}

// AddCheck registers a required check. A failure makes the worker unready.
// Adding a name twice replaces the first check.
func (c *Checker) AddCheck(name string, fn HealthCheckFunc) {
	c.add(namedCheck{name: name, fn: fn, required: true})
}

// AddOptionalCheck registers a check whose failure only degrades the worker.
func (c *Checker) AddOptionalCheck(name string, fn HealthCheckFunc) {
	c.add(namedCheck{name: name, fn: fn})
}

func (c *Checker) add(nc namedCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.checks {
		if c.checks[i].name == nc.name {
			c.checks[i] = nc
			return
		}
	}
	c.checks = append(c.checks, nc)
}

// Check runs every check and aggregates the results.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := append([]namedCheck(nil), c.checks...)
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, nc := range checks {
		g.Go(func() error {
			results[i] = run(ctx, nc)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for i, nc := range checks {
		status.Checks[nc.name] = results[i]
		if results[i].Healthy {
			continue
		}
		status.Healthy = false
		if nc.required {
			status.Ready = false
		}
		failed = append(failed, nc.name)
	}

	if len(failed) == 0 {
		status.Message = "All checks passed"
	} else {
		sort.Strings(failed)
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

func run(ctx context.Context, nc namedCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := nc.fn(ctx)
	res := CheckResult{
		Healthy:     err == nil,
		Required:    nc.required,
		Message:     "OK",
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is implemented by the postgres connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck checks that the backend answers.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// GymLister is the read side of a climbing store.
type GymLister interface {
	ListGyms(ctx context.Context) ([]*climbing.Gym, error)
}

// NewStoreReadyCheck checks that the store answers catalog queries, which
// fails until the schema is in place. An empty catalog is fine.
func NewStoreReadyCheck(store GymLister) HealthCheckFunc {
	return func(ctx context.Context) error {
		if _, err := store.ListGyms(ctx); err != nil {
			return fmt.Errorf("catalog unavailable: %w", err)
		}
		return nil
	}
}

// SnapshotClock reports when a snapshot was last written.
type SnapshotClock interface {
	LastSaved(ctx context.Context) (time.Time, bool, error)
}

// ErrStaleSnapshots is returned when no snapshot was written for too long.
var ErrStaleSnapshots = errors.New("snapshots are stale")

// NewSnapshotFreshnessCheck fails when the newest snapshot is older than
// maxAge. A store without snapshots passes.
func NewSnapshotFreshnessCheck(src SnapshotClock, maxAge time.Duration, now func() time.Time) HealthCheckFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		last, ok, err := src.LastSaved(ctx)
		if err != nil {
			return fmt.Errorf("last snapshot: %w", err)
		}
		if !ok {
			return nil
		}
		if age := now().Sub(last); age > maxAge {
			return fmt.Errorf("%w: last saved %s ago, limit %s", ErrStaleSnapshots, age.Round(time.Second), maxAge)
		}
		return nil
	}
}
