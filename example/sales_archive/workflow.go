package sales_archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/builder"
	"github.com/sicko7947/etlkit/engine"
	"github.com/sicko7947/etlkit/store"
)

// ArchiveFile is the Parquet file every run writes
const ArchiveFile = "sales.parquet"

// NewSalesArchive constructs the pipeline and job of one archive run. Orders
// are staged in a sqlite database under dir, cleaned, banded and archived
// next to it as Parquet.
func NewSalesArchive(dir string, input RunInput, logger zerolog.Logger) (*etlkit.Pipeline, *engine.Job, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	seed, err := SalesTable(GenerateSales(input.Orders, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate sales: %w", err)
	}

	ifExists := etlkit.IfExistsFail
	if input.Overwrite {
		ifExists = etlkit.IfExistsReplace
	}

	p, job, err := builder.NewPipeline("sales_archive", "Sales Archive",
		builder.WithLogger(logger),
		builder.WithStepTimeout(time.Minute),
	).
		Source(store.KindMemory, "seed", etlkit.StoreTypeSource, etlkit.StoreConfig{Conn: seed}).
		Source(store.KindSQL, "staging", etlkit.StoreTypeStaging, etlkit.StoreConfig{
			URL:   "sqlite://" + filepath.Join(dir, "staging.db"),
			Table: "sales",
		}).
		Source(store.KindHDF, "archive", etlkit.StoreTypeTarget, etlkit.StoreConfig{
			Path:     dir,
			Filename: ArchiveFile,
			Options:  map[string]any{"compression": "zstd"},
		}).
		Extract("extract_seed", "seed", etlkit.ExtractRequest{}).
		Load("stage", "staging", etlkit.LoadOptions{IfExists: etlkit.IfExistsReplace}).
		Step(NewDropSmallStep(input.MinAmount)).
		Extract("reload", "staging", etlkit.ExtractRequest{ParseDates: []string{"placed_at"}}).
		Step(NewBandStep()).
		Load("archive", "archive", etlkit.LoadOptions{Overwrite: input.Overwrite, IfExists: ifExists}).
		Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	return p, job, nil
}
