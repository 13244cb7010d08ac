package engine

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/sicko7947/etlkit"
)

// StepFunc is the body of a step
type StepFunc func(ctx context.Context, p *etlkit.Pipeline) error

// Step is one named unit of work run against a pipeline
type Step struct {
	ID   string
	Name string
	// Stores lists the stores the step touches
	Stores []string
	// Timeout bounds a single run of the step; zero means no limit
	Timeout time.Duration
	Run     StepFunc
}

// Job is an ordered list of steps
type Job struct {
	ID    string
	Name  string
	Steps []Step
}

// NewJob creates a job from steps
func NewJob(id, name string, steps ...Step) *Job {
	return &Job{ID: id, Name: name, Steps: steps}
}

// Validate checks that the job has steps with unique IDs and bodies
func (j *Job) Validate() error {
	if j == nil || len(j.Steps) == 0 {
		return etlkit.NewError(etlkit.ErrCodeConfig, "job has no steps")
	}
	seen := make(map[string]bool, len(j.Steps))
	for i, s := range j.Steps {
		if s.ID == "" {
			return etlkit.Errorf(etlkit.ErrCodeConfig, "step %d has no id", i)
		}
		if seen[s.ID] {
			return etlkit.Errorf(etlkit.ErrCodeDuplicateName, "step id %q is used twice", s.ID)
		}
		seen[s.ID] = true
		if s.Run == nil {
			return etlkit.Errorf(etlkit.ErrCodeConfig, "step %q has no body", s.ID)
		}
	}
	return nil
}

// StoreNames returns every store referenced by the job's steps
func (j *Job) StoreNames() []string {
	return lo.Uniq(lo.FlatMap(j.Steps, func(s Step, _ int) []string {
		return s.Stores
	}))
}

// WithTimeout returns a copy of the step with a timeout
func (s Step) WithTimeout(d time.Duration) Step {
	s.Timeout = d
	return s
}

// ExtractStep reads from store and makes the result the current table
func ExtractStep(id, store string, req etlkit.ExtractRequest) Step {
	return Step{
		ID:     id,
		Name:   "extract " + store,
		Stores: []string{store},
		Run: func(ctx context.Context, p *etlkit.Pipeline) error {
			_, err := p.Extract(ctx, store, req, true)
			return err
		},
	}
}

// LoadStep writes the current table into store
func LoadStep(id, store string, opts etlkit.LoadOptions) Step {
	return Step{
		ID:     id,
		Name:   "load " + store,
		Stores: []string{store},
		Run: func(ctx context.Context, p *etlkit.Pipeline) error {
			_, err := p.Load(ctx, store, opts)
			return err
		},
	}
}

// CleanStep deletes the rows of store matching conditions
func CleanStep(id, store string, conditions []etlkit.Condition, op etlkit.BinaryOp) Step {
	return Step{
		ID:     id,
		Name:   "clean " + store,
		Stores: []string{store},
		Run: func(ctx context.Context, p *etlkit.Pipeline) error {
			_, err := p.Clean(ctx, store, conditions, op)
			return err
		},
	}
}

// UpdateStep sets values on the rows of store matching where
func UpdateStep(id, store string, values, where map[string]any) Step {
	return Step{
		ID:     id,
		Name:   "update " + store,
		Stores: []string{store},
		Run: func(ctx context.Context, p *etlkit.Pipeline) error {
			_, err := p.Update(ctx, store, values, where)
			return err
		},
	}
}

// TransformStep applies fn to the pipeline
func TransformStep(id, name string, fn etlkit.PipelineFunc) Step {
	return Step{
		ID:   id,
		Name: name,
		Run: func(ctx context.Context, p *etlkit.Pipeline) error {
			return p.Transform(ctx, fn)
		},
	}
}

// ConcatStep concatenates the cached tables of stores into the current table
func ConcatStep(id string, stores ...string) Step {
	return Step{
		ID:     id,
		Name:   "concat",
		Stores: stores,
		Run: func(ctx context.Context, p *etlkit.Pipeline) error {
			_, err := p.Concat(stores, true)
			return err
		},
	}
}
