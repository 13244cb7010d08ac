package etlkit

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log event names
const (
	// Registry events
	EventStoreAdded   = "store_added"
	EventStoreRemoved = "store_removed"
	EventStoreClosed  = "store_closed"

	// Data movement events
	EventExtractCompleted   = "extract_completed"
	EventLoadCompleted      = "load_completed"
	EventCleanCompleted     = "clean_completed"
	EventUpdateCompleted    = "update_completed"
	EventTransformCompleted = "transform_completed"
	EventConcatCompleted    = "concat_completed"
	EventOperationFailed    = "operation_failed"

	// Store internals
	EventSQLExecuted = "sql_executed"
	EventFileWritten = "file_written"

	// Job events
	EventJobStarted    = "job_started"
	EventJobCompleted  = "job_completed"
	EventJobFailed     = "job_failed"
	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
)

// DefaultLogger returns a console logger at info level
func DefaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)
}

// LogStoreAdded logs the registration of a store
func LogStoreAdded(logger zerolog.Logger, name, kind string, stype StoreType) {
	logger.Info().
		Str("event", EventStoreAdded).
		Str("store", name).
		Str("kind", kind).
		Str("stype", stype.String()).
		Msg("Store added")
}

// LogStoreRemoved logs the removal of a store
func LogStoreRemoved(logger zerolog.Logger, name string) {
	logger.Info().
		Str("event", EventStoreRemoved).
		Str("store", name).
		Msg("Store removed")
}

// LogStoreClosed logs the release of a store's resources
func LogStoreClosed(logger zerolog.Logger, name string, err error) {
	ev := logger.Debug()
	if err != nil {
		ev = logger.Warn().Err(err)
	}
	ev.Str("event", EventStoreClosed).
		Str("store", name).
		Msg("Store closed")
}

// LogExtractCompleted logs a finished extract
func LogExtractCompleted(logger zerolog.Logger, name string, rows, cols int, duration time.Duration) {
	logger.Info().
		Str("event", EventExtractCompleted).
		Str("store", name).
		Int("rows", rows).
		Int("cols", cols).
		Dur("duration", duration).
		Msg("Extract completed")
}

// LogLoadCompleted logs a finished load
func LogLoadCompleted(logger zerolog.Logger, name string, rows int, duration time.Duration) {
	logger.Info().
		Str("event", EventLoadCompleted).
		Str("store", name).
		Int("rows", rows).
		Dur("duration", duration).
		Msg("Load completed")
}

// LogCleanCompleted logs a finished clean
func LogCleanCompleted(logger zerolog.Logger, name string, deleted int64) {
	logger.Info().
		Str("event", EventCleanCompleted).
		Str("store", name).
		Int64("deleted", deleted).
		Msg("Clean completed")
}

// LogUpdateCompleted logs a finished update
func LogUpdateCompleted(logger zerolog.Logger, name string, updated int64) {
	logger.Info().
		Str("event", EventUpdateCompleted).
		Str("store", name).
		Int64("updated", updated).
		Msg("Update completed")
}

// LogTransformCompleted logs a finished transform; name is empty for pipeline-level transforms
func LogTransformCompleted(logger zerolog.Logger, name string) {
	logger.Debug().
		Str("event", EventTransformCompleted).
		Str("store", name).
		Msg("Transform completed")
}

// LogConcatCompleted logs a finished concat
func LogConcatCompleted(logger zerolog.Logger, names []string, rows int) {
	logger.Info().
		Str("event", EventConcatCompleted).
		Strs("stores", names).
		Int("rows", rows).
		Msg("Concat completed")
}

// LogOperationFailed logs a failed pipeline operation
func LogOperationFailed(logger zerolog.Logger, operation, name string, err error) {
	logger.Error().
		Str("event", EventOperationFailed).
		Str("operation", operation).
		Str("store", name).
		Str("code", Code(err)).
		Err(err).
		Msg("Operation failed")
}

// LogSQLExecuted logs a statement sent to a database
func LogSQLExecuted(logger zerolog.Logger, name, statement string, args int) {
	logger.Debug().
		Str("event", EventSQLExecuted).
		Str("store", name).
		Str("sql", statement).
		Int("args", args).
		Msg("SQL executed")
}

// LogFileWritten logs a file persisted by a store
func LogFileWritten(logger zerolog.Logger, name, path string, rows int) {
	logger.Debug().
		Str("event", EventFileWritten).
		Str("store", name).
		Str("path", path).
		Int("rows", rows).
		Msg("File written")
}

// LogJobStarted logs when a job starts execution
func LogJobStarted(logger zerolog.Logger, runID, jobID string, steps int) {
	logger.Info().
		Str("event", EventJobStarted).
		Str("run_id", runID).
		Str("job_id", jobID).
		Int("steps", steps).
		Msg("Job started")
}

// LogJobCompleted logs successful job completion
func LogJobCompleted(logger zerolog.Logger, runID string, duration time.Duration) {
	logger.Info().
		Str("event", EventJobCompleted).
		Str("run_id", runID).
		Dur("duration", duration).
		Msg("Job completed")
}

// LogJobFailed logs job failure
func LogJobFailed(logger zerolog.Logger, runID string, err error) {
	logger.Error().
		Str("event", EventJobFailed).
		Str("run_id", runID).
		Err(err).
		Msg("Job failed")
}

// LogStepStarted logs when a step starts execution
func LogStepStarted(logger zerolog.Logger, runID, stepID, stepName string) {
	logger.Info().
		Str("event", EventStepStarted).
		Str("run_id", runID).
		Str("step_id", stepID).
		Str("step_name", stepName).
		Msg("Step started")
}

// LogStepCompleted logs successful step completion
func LogStepCompleted(logger zerolog.Logger, runID, stepID string, durationMs int64) {
	logger.Info().
		Str("event", EventStepCompleted).
		Str("run_id", runID).
		Str("step_id", stepID).
		Int64("duration_ms", durationMs).
		Msg("Step completed")
}

// LogStepFailed logs step failure
func LogStepFailed(logger zerolog.Logger, runID, stepID string, err error) {
	logger.Error().
		Str("event", EventStepFailed).
		Str("run_id", runID).
		Str("step_id", stepID).
		Err(err).
		Msg("Step failed")
}

// PipelineLogger creates a logger enriched with pipeline context
func PipelineLogger(baseLogger zerolog.Logger, pipelineID string) zerolog.Logger {
	return baseLogger.With().
		Str("pipeline_id", pipelineID).
		Logger()
}

// StoreLogger creates a logger enriched with store context
func StoreLogger(baseLogger zerolog.Logger, name, kind string) zerolog.Logger {
	return baseLogger.With().
		Str("store", name).
		Str("kind", kind).
		Logger()
}
