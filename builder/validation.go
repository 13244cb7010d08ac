package builder

import (
	"strings"

	"github.com/samber/lo"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/engine"
)

// ValidateJob checks the job structure: at least one step, unique step IDs
// and a body on every step
func ValidateJob(job *engine.Job) error {
	return job.Validate()
}

// ValidateStoreReferences ensures every store a step touches is declared
func ValidateStoreReferences(job *engine.Job, cfg *etlkit.Config) error {
	declared := lo.SliceToMap(cfg.Sources, func(s etlkit.SourceConfig) (string, bool) {
		return s.Name, true
	})

	for _, step := range job.Steps {
		for _, name := range step.Stores {
			if !declared[name] {
				return etlkit.Errorf(etlkit.ErrCodeConfig, "step %s references undeclared store", step.ID).WithStore(name)
			}
		}
	}
	return nil
}

// ValidateStoreTypes checks that extract steps read from stores able to
// extract and load steps write to stores able to load. Steps are matched by
// the name prefix the step constructors give them.
func ValidateStoreTypes(job *engine.Job, cfg *etlkit.Config) error {
	types := lo.SliceToMap(cfg.Sources, func(s etlkit.SourceConfig) (string, etlkit.StoreType) {
		return s.Name, etlkit.StoreType(strings.ToLower(s.Type))
	})

	for _, step := range job.Steps {
		if len(step.Stores) != 1 {
			continue
		}
		name := step.Stores[0]
		stype, ok := types[name]
		if !ok {
			continue
		}
		switch {
		case step.Name == "extract "+name && !stype.CanExtract():
			return etlkit.Errorf(etlkit.ErrCodeStypeViolation, "step %s extracts from a %s store", step.ID, stype).WithStore(name)
		case step.Name == "load "+name && !stype.CanLoad():
			return etlkit.Errorf(etlkit.ErrCodeStypeViolation, "step %s loads into a %s store", step.ID, stype).WithStore(name)
		}
	}
	return nil
}
