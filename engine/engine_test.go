package engine

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/store"
)

func createTestEngine(t *testing.T) (*Engine, *etlkit.Pipeline) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	p := etlkit.New(etlkit.WithLogger(logger), etlkit.WithKinds(store.Kinds()))
	t.Cleanup(func() { _ = p.Close() })
	return NewEngine(WithLogger(logger)), p
}

func recordStep(id string, calls *[]string, err error) Step {
	return Step{
		ID:   id,
		Name: "record " + id,
		Run: func(ctx context.Context, p *etlkit.Pipeline) error {
			*calls = append(*calls, id)
			return err
		},
	}
}

func TestEngine_RunsStepsInOrder(t *testing.T) {
	eng, p := createTestEngine(t)
	var calls []string

	job := NewJob("ordered", "Ordered",
		recordStep("a", &calls, nil),
		recordStep("b", &calls, nil),
		recordStep("c", &calls, nil),
	)

	report, err := eng.Run(context.Background(), p, job)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, calls)
	assert.Equal(t, RunStatusCompleted, report.Status)
	assert.Equal(t, 1.0, report.Progress)
	assert.Equal(t, p.ID(), report.PipelineID)
	assert.NotEmpty(t, report.RunID)
	assert.NotNil(t, report.CompletedAt)
	for _, s := range report.Steps {
		assert.Equal(t, StepStatusCompleted, s.Status, s.StepID)
		assert.NotNil(t, s.StartedAt)
	}
}

func TestEngine_StopsAtFirstFailure(t *testing.T) {
	eng, p := createTestEngine(t)
	var calls []string
	boom := etlkit.NewStoreError(etlkit.ErrCodeConflict, "dst", "table exists")

	job := NewJob("failing", "Failing",
		recordStep("a", &calls, nil),
		recordStep("b", &calls, boom),
		recordStep("c", &calls, nil),
	)

	report, err := eng.Run(context.Background(), p, job)
	require.Error(t, err)
	assert.True(t, etlkit.IsConflictError(err), "error code should survive wrapping: %v", err)
	assert.Contains(t, err.Error(), "step b failed")

	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Equal(t, RunStatusFailed, report.Status)
	assert.InDelta(t, 1.0/3.0, report.Progress, 1e-9)
	assert.Equal(t, StepStatusCompleted, report.Step("a").Status)
	assert.Equal(t, StepStatusFailed, report.Step("b").Status)
	assert.Contains(t, report.Step("b").Error, "table exists")
	assert.Equal(t, StepStatusSkipped, report.Step("c").Status)
	assert.Nil(t, report.Step("missing"))
}

func TestEngine_RecoversPanics(t *testing.T) {
	eng, p := createTestEngine(t)

	job := NewJob("panics", "Panics", Step{
		ID: "boom",
		Run: func(ctx context.Context, p *etlkit.Pipeline) error {
			panic("kaboom")
		},
	})

	report, err := eng.Run(context.Background(), p, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, RunStatusFailed, report.Status)
}

func TestEngine_StepTimeout(t *testing.T) {
	eng, p := createTestEngine(t)

	slow := Step{
		ID: "slow",
		Run: func(ctx context.Context, p *etlkit.Pipeline) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	}.WithTimeout(20 * time.Millisecond)

	report, err := eng.Run(context.Background(), p, NewJob("slow", "Slow", slow))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, StepStatusFailed, report.Step("slow").Status)
}

func TestEngine_Cancelled(t *testing.T) {
	eng, p := createTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls []string

	job := NewJob("cancel", "Cancel",
		Step{ID: "a", Run: func(context.Context, *etlkit.Pipeline) error {
			calls = append(calls, "a")
			cancel()
			return nil
		}},
		recordStep("b", &calls, nil),
	)

	report, err := eng.Run(ctx, p, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, calls)
	assert.Equal(t, RunStatusCancelled, report.Status)
	assert.True(t, report.Status.IsTerminal())
	assert.Equal(t, StepStatusSkipped, report.Step("b").Status)
}

func TestEngine_InvalidJobs(t *testing.T) {
	eng, p := createTestEngine(t)
	noop := func(context.Context, *etlkit.Pipeline) error { return nil }

	tests := []struct {
		name  string
		job   *Job
		check func(error) bool
	}{
		{"nil job", nil, etlkit.IsConfigError},
		{"no steps", NewJob("j", "J"), etlkit.IsConfigError},
		{"missing id", NewJob("j", "J", Step{Run: noop}), etlkit.IsConfigError},
		{"missing body", NewJob("j", "J", Step{ID: "a"}), etlkit.IsConfigError},
		{"duplicate id", NewJob("j", "J", Step{ID: "a", Run: noop}, Step{ID: "a", Run: noop}), etlkit.IsDuplicateNameError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := eng.Run(context.Background(), p, tt.job)
			require.Error(t, err)
			assert.Nil(t, report)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}

	_, err := eng.Run(context.Background(), nil, NewJob("j", "J", Step{ID: "a", Run: noop}))
	assert.True(t, etlkit.IsConfigError(err))
}

func TestJob_StoreNames(t *testing.T) {
	job := NewJob("j", "J",
		ExtractStep("e", "src", etlkit.ExtractRequest{}),
		ConcatStep("c", "src", "other"),
		TransformStep("t", "noop", func(context.Context, *etlkit.Pipeline) error { return nil }),
		LoadStep("l", "dst", etlkit.LoadOptions{}),
	)

	assert.Equal(t, []string{"src", "other", "dst"}, job.StoreNames())
	assert.Equal(t, "extract src", job.Steps[0].Name)
}

func TestRunStatus(t *testing.T) {
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
	assert.False(t, StepStatusPending.IsTerminal())
	assert.True(t, StepStatusSkipped.IsTerminal())
	assert.Equal(t, "COMPLETED", RunStatusCompleted.String())
}
