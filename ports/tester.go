package ports

import (
	"context"

	"errtable/domain/measurement"
	"errtable/domain/report"
	"errtable/domain/significance"
)

// OmnibusTester computes an omnibus test and its pairwise follow-up tests per
// parameter from flattened measurements. Implementations may run in-process or
// shell out to an external statistics toolchain.
type OmnibusTester interface {
	Compute(ctx context.Context, rows []measurement.ExportRow, kind significance.TestKind) (significance.Results, error)
}

// MeasurementLoader populates a measurement store from an input location
type MeasurementLoader interface {
	Load(ctx context.Context, inputDir string, conditions []measurement.Condition, params []measurement.Parameter) (*measurement.Store, error)
}

// ReportWriter renders one analysis run into an output directory
type ReportWriter interface {
	Name() string
	Write(ctx context.Context, outputDir string, rep *report.Report) error
}
