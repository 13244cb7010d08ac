package store

import (
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/table"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// peopleTable returns a 3 row table with int, string, float and date-like columns
func peopleTable(t *testing.T) *table.Table {
	t.Helper()
	data, err := table.FromRows(
		[]string{"id", "name", "score", "joined"},
		[][]any{
			{1, "ada", 9.5, "2023-01-02"},
			{2, "bob", 7.0, "2023-02-03"},
			{3, "cyd", 4.25, "2023-03-04"},
		},
	)
	if err != nil {
		t.Fatalf("FromRows() failed: %v", err)
	}
	return data
}

func newTestPipeline() *etlkit.Pipeline {
	return etlkit.New(
		etlkit.WithLogger(testLogger()),
		etlkit.WithKinds(Kinds()),
	)
}
