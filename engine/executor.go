package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
)

// executeStep runs a single step with timeout and panic recovery, recording
// the outcome in sr
func (e *Engine) executeStep(
	ctx context.Context,
	logger zerolog.Logger,
	p *etlkit.Pipeline,
	step Step,
	sr *StepReport,
	runID string,
) error {
	stepLogger := logger.With().
		Str("step_id", step.ID).
		Str("step_name", step.Name).
		Logger()

	now := time.Now()
	sr.Status = StepStatusRunning
	sr.StartedAt = &now
	etlkit.LogStepStarted(stepLogger, runID, step.ID, step.Name)

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.config.DefaultStepTimeout
	}
	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	var lastErr error
	startTime := time.Now()

	// Execute step (with panic recovery)
	func() {
		defer func() {
			if r := recover(); r != nil {
				lastErr = fmt.Errorf("step panicked: %v", r)
				stepLogger.Error().Interface("panic", r).Msg("Step panicked")
			}
		}()

		lastErr = step.Run(execCtx, p)
	}()

	// Check if error is timeout
	if lastErr != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) && timeout > 0 {
		lastErr = fmt.Errorf("step timed out after %s: %w", timeout, lastErr)
	}
	cancel()

	duration := time.Since(startTime)
	completedAt := time.Now()
	sr.DurationMs = duration.Milliseconds()
	sr.CompletedAt = &completedAt

	if lastErr != nil {
		sr.Status = StepStatusFailed
		sr.Error = lastErr.Error()
		etlkit.LogStepFailed(stepLogger, runID, step.ID, lastErr)
		return stepError(step.ID, lastErr)
	}

	sr.Status = StepStatusCompleted
	etlkit.LogStepCompleted(stepLogger, runID, step.ID, sr.DurationMs)
	return nil
}
