package builder

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/engine"
	"github.com/sicko7947/etlkit/store"
)

// PipelineBuilder provides a fluent API for assembling a pipeline and the
// job that runs against it
type PipelineBuilder struct {
	jobID       string
	jobName     string
	logger      *zerolog.Logger
	kinds       map[string]etlkit.StoreFactory
	config      etlkit.Config
	steps       []engine.Step
	stepTimeout int64
}

// NewPipeline creates a new pipeline builder. Store kinds default to the
// kinds of the store package.
func NewPipeline(id, name string, opts ...Option) *PipelineBuilder {
	b := &PipelineBuilder{
		jobID:   id,
		jobName: name,
		kinds:   store.Kinds(),
	}
	ApplyOptions(b, opts...)
	return b
}

// WithLogger sets the logger of the built pipeline
func (b *PipelineBuilder) WithLogger(logger zerolog.Logger) *PipelineBuilder {
	b.logger = &logger
	return b
}

// WithKind registers an extra store kind
func (b *PipelineBuilder) WithKind(kind string, factory etlkit.StoreFactory) *PipelineBuilder {
	b.kinds[kind] = factory
	return b
}

// WithLogLevel sets the level of the built pipeline's logger
func (b *PipelineBuilder) WithLogLevel(level string) *PipelineBuilder {
	b.config.LogLevel = level
	return b
}

// Source declares a store of the pipeline
func (b *PipelineBuilder) Source(kind, name string, stype etlkit.StoreType, cfg etlkit.StoreConfig) *PipelineBuilder {
	b.config.Sources = append(b.config.Sources, etlkit.SourceConfig{
		Kind:        kind,
		Name:        name,
		Type:        string(stype),
		StoreConfig: cfg,
	})
	return b
}

// FromConfig declares every source of cfg
func (b *PipelineBuilder) FromConfig(cfg *etlkit.Config) *PipelineBuilder {
	if cfg.LogLevel != "" {
		b.config.LogLevel = cfg.LogLevel
	}
	b.config.Sources = append(b.config.Sources, cfg.Sources...)
	return b
}

// Step appends steps to the job in order
func (b *PipelineBuilder) Step(steps ...engine.Step) *PipelineBuilder {
	b.steps = append(b.steps, steps...)
	return b
}

// Extract appends an extract step reading from store
func (b *PipelineBuilder) Extract(id, store string, req etlkit.ExtractRequest) *PipelineBuilder {
	return b.Step(engine.ExtractStep(id, store, req))
}

// Load appends a load step writing into store
func (b *PipelineBuilder) Load(id, store string, opts etlkit.LoadOptions) *PipelineBuilder {
	return b.Step(engine.LoadStep(id, store, opts))
}

// Transform appends a step applying fn to the pipeline
func (b *PipelineBuilder) Transform(id, name string, fn etlkit.PipelineFunc) *PipelineBuilder {
	return b.Step(engine.TransformStep(id, name, fn))
}

// Build validates the declaration, creates the pipeline with every declared
// store and returns it with the job. Nothing stays open when Build fails.
func (b *PipelineBuilder) Build() (*etlkit.Pipeline, *engine.Job, error) {
	job := engine.NewJob(b.jobID, b.jobName, b.steps...)
	if b.stepTimeout > 0 {
		for i := range job.Steps {
			if job.Steps[i].Timeout == 0 {
				job.Steps[i].Timeout = durationMs(b.stepTimeout)
			}
		}
	}

	if err := ValidateJob(job); err != nil {
		return nil, nil, err
	}
	if err := b.config.Validate(); err != nil {
		return nil, nil, err
	}
	if err := ValidateStoreReferences(job, &b.config); err != nil {
		return nil, nil, err
	}
	if err := ValidateStoreTypes(job, &b.config); err != nil {
		return nil, nil, err
	}

	opts := []etlkit.Option{etlkit.WithKinds(b.kinds)}
	if b.logger != nil {
		opts = append(opts, etlkit.WithLogger(*b.logger))
	}
	p := etlkit.New(opts...)

	if err := p.Configure(&b.config); err != nil {
		return nil, nil, fmt.Errorf("failed to configure pipeline: %w", err)
	}
	return p, job, nil
}

// MustBuild finalizes and validates the pipeline, panics on error
func (b *PipelineBuilder) MustBuild() (*etlkit.Pipeline, *engine.Job) {
	p, job, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build pipeline: %v", err))
	}
	return p, job
}
