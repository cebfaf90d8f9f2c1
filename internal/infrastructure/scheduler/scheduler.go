// Package scheduler runs background jobs of the worker, such as the periodic
// interval snapshots of every climber.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping or the job
	// exceeds its timeout.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	// Configuration
	logger     *logger.Logger
	timezone   *time.Location
	tick       time.Duration
	jobTimeout time.Duration
	maxHistory int
	slots      chan struct{}

	// State
	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	// History
	lastRuns   map[string]*JobResult
	runHistory []JobResult

	// Hooks
	onJobComplete func(result JobResult)

	now func() time.Time
}

// scheduledJob wraps a Job with scheduling information.
type scheduledJob struct {
	job       Job
	schedule  Schedule
	enabled   bool
	inFlight  bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
}

// Config contains configuration for the Scheduler.
type Config struct {
	// Logger for structured logging.
	Logger *logger.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// MaxConcurrentJobs bounds the number of jobs running at once.
	MaxConcurrentJobs int

	// JobTimeout cancels a run that takes longer. Zero means no limit.
	JobTimeout time.Duration

	// MaxHistorySize is the maximum number of job results to keep in history.
	MaxHistorySize int

	// TickInterval is how often due jobs are checked (default: 1s).
	TickInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger:            logger.Default(),
		Timezone:          time.UTC,
		MaxConcurrentJobs: 5,
		JobTimeout:        5 * time.Minute,
		MaxHistorySize:    1000,
		TickInterval:      time.Second,
	}
}

// New creates a new Scheduler with the given configuration.
func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 1
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 1000
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}

	return &Scheduler{
		logger:     config.Logger.With(logger.Component("scheduler")),
		timezone:   config.Timezone,
		tick:       config.TickInterval,
		jobTimeout: config.JobTimeout,
		maxHistory: config.MaxHistorySize,
		slots:      make(chan struct{}, config.MaxConcurrentJobs),
		jobs:       make(map[string]*scheduledJob),
		lastRuns:   make(map[string]*JobResult),
		now:        time.Now,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		enabled:  true,
		nextRun:  schedule.Next(s.now().In(s.timezone)),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.Time("next_run", sj.nextRun),
	)

	return nil
}

// DisableJob stops scheduling a job until EnableJob is called.
func (s *Scheduler) DisableJob(jobName string) error {
	return s.setEnabled(jobName, false)
}

// EnableJob resumes scheduling of a job.
func (s *Scheduler) EnableJob(jobName string) error {
	return s.setEnabled(jobName, true)
}

func (s *Scheduler) setEnabled(jobName string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	sj.enabled = enabled
	if enabled {
		sj.nextRun = sj.schedule.Next(s.now().In(s.timezone))
	}
	return nil
}

// OnJobComplete sets a callback called after every run, scheduled or manual.
func (s *Scheduler) OnJobComplete(fn func(result JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobComplete = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.now()
	jobs := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", logger.Int("jobs_count", jobs))

	s.wg.Add(1)
	go s.runLoop()

	return nil
}

// Stop gracefully stops the scheduler.
// It waits for all currently running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("scheduler stopped", logger.Duration("uptime", time.Since(s.startedAt)))

	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER LOOP
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

// checkAndRunJobs starts every due job that is not already running.
func (s *Scheduler) checkAndRunJobs() {
	now := s.now().In(s.timezone)

	s.mu.Lock()
	due := make([]*scheduledJob, 0)
	for _, sj := range s.jobs {
		if sj.enabled && !sj.inFlight && !sj.nextRun.IsZero() && !now.Before(sj.nextRun) {
			sj.inFlight = true
			sj.lastRun = now
			sj.nextRun = sj.schedule.Next(now)
			sj.runCount++
			due = append(due, sj)
		}
	}
	s.mu.Unlock()

	for _, sj := range due {
		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.execute(s.ctx, sj, false)
		}(sj)
	}
}

// execute runs a job inside a concurrency slot and records the result.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	jobName := sj.job.Name()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.finish(sj)
		return JobResult{JobName: jobName, Error: ctx.Err(), Manual: manual}
	}

	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	log := s.logger.With(logger.String("job", jobName), logger.Bool("manual", manual))
	log.Debug("job started")

	startedAt := s.now()
	err := s.safeRun(ctx, sj.job)
	completedAt := s.now()

	result := JobResult{
		JobName:     jobName,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}

	s.mu.Lock()
	if err != nil {
		sj.failCount++
	}
	sj.inFlight = false
	s.lastRuns[jobName] = &result
	s.addToHistory(result)
	hook := s.onJobComplete
	s.mu.Unlock()

	if err != nil {
		log.Error("job failed", logger.Latency(result.Duration), logger.Err(err))
	} else {
		log.Info("job completed", logger.Latency(result.Duration))
	}

	if hook != nil {
		hook(result)
	}
	return result
}

func (s *Scheduler) finish(sj *scheduledJob) {
	s.mu.Lock()
	sj.inFlight = false
	s.mu.Unlock()
}

// safeRun turns a panicking job into an error so the loop survives it.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// addToHistory adds a result to the run history with size limit.
func (s *Scheduler) addToHistory(result JobResult) {
	s.runHistory = append(s.runHistory, result)
	if len(s.runHistory) > s.maxHistory {
		s.runHistory = s.runHistory[len(s.runHistory)-s.maxHistory:]
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow immediately executes a job by name, ignoring its schedule.
// It fails with ErrJobRunning when a scheduled run is in progress.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.inFlight {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	sj.inFlight = true
	sj.runCount++
	s.mu.Unlock()

	result := s.execute(ctx, sj, true)
	return &result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Enabled:     sj.enabled,
			Schedule:    sj.schedule.String(),
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastResult:  s.lastRuns[name],
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// GetHistory returns the most recent job results, oldest first.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.runHistory) {
		limit = len(s.runHistory)
	}

	result := make([]JobResult, limit)
	copy(result, s.runHistory[len(s.runHistory)-limit:])

	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrNilSchedule is returned when trying to register a job with nil schedule.
	ErrNilSchedule = errors.New("schedule cannot be nil")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning is returned by RunNow while the job is running.
	ErrJobRunning = errors.New("job is already running")

	// ErrJobPanicked wraps a recovered panic.
	ErrJobPanicked = errors.New("job panicked")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)
