package sales_archive

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/engine"
	"github.com/sicko7947/etlkit/store"
	"github.com/sicko7947/etlkit/table"
)

type run struct {
	status *RunStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator starts archive runs in the background and tracks their reports
type Orchestrator struct {
	engine *engine.Engine
	logger zerolog.Logger
	dir    string

	mu   sync.Mutex
	runs map[string]*run
}

// NewOrchestrator creates an orchestrator writing every run below dir
func NewOrchestrator(dir string, logger zerolog.Logger, config engine.EngineConfig) *Orchestrator {
	return &Orchestrator{
		engine: engine.NewEngine(
			engine.WithLogger(logger),
			engine.WithConfig(config),
		),
		logger: logger,
		dir:    dir,
		runs:   make(map[string]*run),
	}
}

// StartRun builds a pipeline for input and runs it in the background
func (o *Orchestrator) StartRun(input RunInput) (string, error) {
	if input.Orders <= 0 {
		return "", etlkit.NewError(etlkit.ErrCodeConfig, "orders must be positive")
	}

	runID := uuid.NewString()
	dir := filepath.Join(o.dir, runID)

	p, job, err := NewSalesArchive(dir, input, o.logger)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		status: &RunStatus{
			RunID:   runID,
			Status:  engine.RunStatusRunning,
			Input:   input,
			Archive: filepath.Join(dir, ArchiveFile),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	o.runs[runID] = r
	o.mu.Unlock()

	o.logger.Info().
		Str("run_id", runID).
		Int("orders", input.Orders).
		Float64("min_amount", input.MinAmount).
		Msg("Starting sales archive run")

	go func() {
		defer close(r.done)
		defer cancel()
		defer func() {
			if err := p.Close(); err != nil {
				o.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to close pipeline")
			}
		}()

		report, err := o.engine.Run(ctx, p, job)

		o.mu.Lock()
		defer o.mu.Unlock()
		r.status.Report = report
		switch {
		case report != nil:
			r.status.Status = report.Status
		case err != nil:
			r.status.Status = engine.RunStatusFailed
		}
	}()

	return runID, nil
}

// GetRunStatus returns a snapshot of the run's state
func (o *Orchestrator) GetRunStatus(runID string) (*RunStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.runs[runID]
	if !ok {
		return nil, etlkit.Errorf(etlkit.ErrCodeNotFound, "run %s not found", runID)
	}
	status := *r.status
	return &status, nil
}

// Wait blocks until the run finishes or ctx is done
func (o *Orchestrator) Wait(ctx context.Context, runID string) (*RunStatus, error) {
	o.mu.Lock()
	r, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return nil, etlkit.Errorf(etlkit.ErrCodeNotFound, "run %s not found", runID)
	}

	select {
	case <-r.done:
		return o.GetRunStatus(runID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelRun cancels a running archive run
func (o *Orchestrator) CancelRun(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.runs[runID]
	if !ok {
		return etlkit.Errorf(etlkit.ErrCodeNotFound, "run %s not found", runID)
	}
	if r.status.Status.IsTerminal() {
		return etlkit.Errorf(etlkit.ErrCodeConflict, "run %s already %s", runID, r.status.Status)
	}
	r.cancel()
	return nil
}

// Preview reads the first n rows of a completed run's archive
func (o *Orchestrator) Preview(ctx context.Context, runID string, n int) (*table.Table, error) {
	status, err := o.GetRunStatus(runID)
	if err != nil {
		return nil, err
	}
	if status.Status != engine.RunStatusCompleted {
		return nil, etlkit.Errorf(etlkit.ErrCodeConflict, "run %s is %s", runID, status.Status)
	}

	reader, err := store.NewHDFStore("preview", etlkit.StoreTypeSource, etlkit.StoreConfig{
		Path:     filepath.Dir(status.Archive),
		Filename: ArchiveFile,
	}, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	return reader.Extract(ctx, etlkit.ExtractRequest{Limit: n})
}
