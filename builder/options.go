package builder

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
)

// Option is a functional option for configuring pipeline builders
type Option func(*PipelineBuilder)

// WithLogger sets the logger of the built pipeline
func WithLogger(logger zerolog.Logger) Option {
	return func(b *PipelineBuilder) {
		b.WithLogger(logger)
	}
}

// WithKinds replaces the registered store kinds
func WithKinds(kinds map[string]etlkit.StoreFactory) Option {
	return func(b *PipelineBuilder) {
		b.kinds = make(map[string]etlkit.StoreFactory, len(kinds))
		for kind, factory := range kinds {
			b.kinds[kind] = factory
		}
	}
}

// WithStepTimeout sets the timeout of every step that has none
func WithStepTimeout(d time.Duration) Option {
	return func(b *PipelineBuilder) {
		b.stepTimeout = d.Milliseconds()
	}
}

// ApplyOptions applies a list of options to a builder
func ApplyOptions(b *PipelineBuilder, opts ...Option) {
	for _, opt := range opts {
		opt(b)
	}
}

func durationMs(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
