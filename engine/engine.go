package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
)

// Engine runs jobs against pipelines
type Engine struct {
	logger zerolog.Logger
	config EngineConfig
}

// EngineConfig holds engine configuration
type EngineConfig struct {
	// DefaultTimeout bounds a whole job run; zero means no limit
	DefaultTimeout time.Duration
	// DefaultStepTimeout applies to steps without their own timeout
	DefaultStepTimeout time.Duration
}

// DefaultEngineConfig provides sensible defaults
var DefaultEngineConfig = EngineConfig{
	DefaultTimeout:     30 * time.Minute,
	DefaultStepTimeout: 0,
}

// EngineOption configures the engine
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the engine
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig sets a custom configuration for the engine
func WithConfig(config EngineConfig) EngineOption {
	return func(e *Engine) {
		e.config = config
	}
}

// NewEngine creates a new engine with optional configuration.
// If no logger is provided, a default console logger with Info level is used.
// If no config is provided, DefaultEngineConfig is used.
func NewEngine(opts ...EngineOption) *Engine {
	eng := &Engine{
		logger: etlkit.DefaultLogger(),
		config: DefaultEngineConfig,
	}

	// Apply options
	for _, opt := range opts {
		opt(eng)
	}

	return eng
}

// Run executes the steps of job against p strictly in order. It stops at the
// first failing step, marks the rest skipped and returns that step's error
// along with the report. A cancelled context stops the run between steps.
func (e *Engine) Run(ctx context.Context, p *etlkit.Pipeline, job *Job) (*RunReport, error) {
	if p == nil {
		return nil, etlkit.NewError(etlkit.ErrCodeConfig, "pipeline is nil")
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if e.config.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.DefaultTimeout)
		defer cancel()
	}

	report := &RunReport{
		RunID:      uuid.New().String(),
		JobID:      job.ID,
		PipelineID: p.ID(),
		Status:     RunStatusRunning,
		StartedAt:  time.Now(),
		Steps:      make([]*StepReport, len(job.Steps)),
	}
	for i, s := range job.Steps {
		report.Steps[i] = &StepReport{StepID: s.ID, Name: s.Name, Status: StepStatusPending}
	}

	runLogger := e.logger.With().
		Str("run_id", report.RunID).
		Str("job_id", job.ID).
		Str("pipeline_id", p.ID()).
		Logger()
	etlkit.LogJobStarted(runLogger, report.RunID, job.ID, len(job.Steps))

	totalSteps := len(job.Steps)
	for i, step := range job.Steps {
		// Check for cancellation
		select {
		case <-ctx.Done():
			runLogger.Warn().Msg("Job run cancelled")
			e.skipRemaining(report, i)
			return e.finish(report, RunStatusCancelled, ctx.Err()), ctx.Err()
		default:
		}

		runLogger.Debug().
			Int("step_num", i+1).
			Int("total_steps", totalSteps).
			Msg("Executing step")

		if err := e.executeStep(ctx, runLogger, p, step, report.Steps[i], report.RunID); err != nil {
			e.skipRemaining(report, i+1)
			etlkit.LogJobFailed(runLogger, report.RunID, err)
			return e.finish(report, RunStatusFailed, err), err
		}

		report.Progress = float64(i+1) / float64(totalSteps)
	}

	e.finish(report, RunStatusCompleted, nil)
	etlkit.LogJobCompleted(runLogger, report.RunID, report.Duration())
	return report, nil
}

func (e *Engine) skipRemaining(report *RunReport, from int) {
	for _, s := range report.Steps[from:] {
		s.Status = StepStatusSkipped
	}
}

func (e *Engine) finish(report *RunReport, status RunStatus, err error) *RunReport {
	completedAt := time.Now()
	report.Status = status
	report.CompletedAt = &completedAt
	if err != nil {
		report.Error = err.Error()
	}
	if status == RunStatusCompleted {
		report.Progress = 1.0
	}
	return report
}

// stepError wraps a step failure keeping the underlying error code
func stepError(stepID string, err error) error {
	return fmt.Errorf("step %s failed: %w", stepID, err)
}
