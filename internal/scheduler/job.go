// Package scheduler runs periodic jobs such as the reminder sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/beekhof/studygroup-sync/internal/logging"
)

// State is the lifecycle state of a Job.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Func is the body of a job.
type Func func(ctx context.Context) error

// Job runs a Func on a cron schedule. Start and Stop are idempotent: starting
// a running job or stopping a stopped one only logs a warning. A tick that
// arrives while the previous run is still going is skipped.
type Job struct {
	name   string
	spec   string
	run    Func
	logger *slog.Logger

	mu    sync.Mutex
	state State
	cron  *cron.Cron
}

// NewJob validates spec, a standard five-field cron expression or a
// descriptor such as "@hourly".
func NewJob(name, spec string, run Func, logger *slog.Logger) (*Job, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		name:   name,
		spec:   spec,
		run:    run,
		logger: logger.With("component", "scheduler", "job", name),
	}, nil
}

// State reports whether the job is scheduled.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Start schedules the job. Runs use ctx as their parent context.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == Running {
		j.logger.Warn("start requested while job is running")
		return nil
	}

	logger := cronLogger{j.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(j.spec, func() { _ = j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", j.name, err)
	}
	c.Start()

	j.cron = c
	j.state = Running
	j.logger.Info("job started", "schedule", j.spec)
	return nil
}

// Stop unschedules the job and waits for a run in progress to finish.
func (j *Job) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == Stopped {
		j.logger.Warn("stop requested while job is stopped")
		return
	}

	<-j.cron.Stop().Done()
	j.cron = nil
	j.state = Stopped
	j.logger.Info("job stopped")
}

// RunOnce runs the job body immediately. Each run gets its own run id,
// attached to the logger carried in the context.
func (j *Job) RunOnce(ctx context.Context) error {
	log := j.logger.With("run_id", uuid.NewString())
	ctx = logging.ContextWithLogger(ctx, log)

	started := time.Now()
	log.Debug("job run starting")
	if err := j.run(ctx); err != nil {
		log.Error("job run failed", "duration", time.Since(started), "error", err)
		return err
	}
	log.Info("job run finished", "duration", time.Since(started))
	return nil
}

// cronLogger routes the cron engine's logging into slog. Routine scheduling
// messages are debug-level.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
