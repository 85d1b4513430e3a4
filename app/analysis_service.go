package app

import (
	"context"
	"fmt"
	"time"

	"errtable/domain/core"
	"errtable/domain/measurement"
	"errtable/domain/ranking"
	"errtable/domain/report"
	"errtable/domain/significance"
	"errtable/internal"
	"errtable/internal/errors"
	"errtable/ports"
)

// AnalysisService runs one error-rate comparison end to end: load, rank, test
// and render
type AnalysisService struct {
	loader     ports.MeasurementLoader
	aggregator *ranking.Aggregator
	alpha      float64
	omnibus    ports.OmnibusTester
	backend    string
	writers    []ports.ReportWriter
	logger     *internal.Logger
	now        func() time.Time
}

// AnalysisRequest defines the inputs of one run
type AnalysisRequest struct {
	InputDir   string
	OutputDir  string
	Conditions []measurement.Condition
	Labels     []string
	Parameters []measurement.Parameter

	// CaseStudyLabel maps a directory name to its display label; nil keeps the name
	CaseStudyLabel func(measurement.CaseStudy) string
	// RankingExclude conditions are shown but never ranked
	RankingExclude []measurement.Condition
	// VarianceExclude conditions are left out of the Levene pass
	VarianceExclude []measurement.Condition

	RunID core.RunID // optional, generated if empty
}

// AnalysisResult contains everything derived by a run
type AnalysisResult struct {
	RunID     core.RunID
	Store     *measurement.Store
	Cells     ranking.CellRankings
	Report    *report.Report
	RuntimeMs int64
}

// AnalysisDeps bundles the collaborators of the service
type AnalysisDeps struct {
	Loader  ports.MeasurementLoader
	Tester  ranking.TwoSampleTester
	Alpha   float64
	Omnibus ports.OmnibusTester
	Backend string
	Writers []ports.ReportWriter
	Logger  *internal.Logger
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(deps AnalysisDeps) *AnalysisService {
	logger := deps.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	engine := ranking.NewEngine(deps.Tester, deps.Alpha)
	return &AnalysisService{
		loader:     deps.Loader,
		aggregator: ranking.NewAggregator(engine),
		alpha:      engine.Alpha(),
		omnibus:    deps.Omnibus,
		backend:    deps.Backend,
		writers:    deps.Writers,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes the analysis and writes every report
func (s *AnalysisService) Run(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	startTime := time.Now()
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID.IsEmpty() {
		runID = core.NewRunID()
	}
	s.logger.Info("[Analysis] Run %s: %d conditions, %d parameters, backend %s",
		runID.Short(), len(req.Conditions), len(req.Parameters), s.backend)

	store, err := s.loader.Load(ctx, req.InputDir, req.Conditions, req.Parameters)
	if err != nil {
		return nil, errors.Wrap(err, "loading measurements")
	}

	plan := ranking.Plan{
		Conditions: req.Conditions,
		Parameters: req.Parameters,
		Exclude:    req.RankingExclude,
	}
	cells, err := s.aggregator.CellRankings(store, plan)
	if err != nil {
		return nil, errors.Wrap(err, "ranking cells")
	}
	global, err := s.aggregator.GlobalRanking(store, store.CaseStudies(), plan)
	if err != nil {
		return nil, errors.Wrap(err, "ranking pooled means")
	}

	rep := &report.Report{
		RunID:      runID,
		CreatedAt:  s.now(),
		Backend:    s.backend,
		Alpha:      s.alpha,
		Conditions: req.Conditions,
		Labels:     req.Labels,
		Parameters: req.Parameters,
		Rows:       buildRows(store, cells, req),
		Global:     global,
	}

	// Every condition enters the Kruskal pass; the variance exclusion applies to Levene only
	kruskal, err := s.runPass(ctx, store, req, significance.Kruskal, nil)
	if err != nil {
		return nil, err
	}
	levene, err := s.runPass(ctx, store, req, significance.Levene, req.VarianceExclude)
	if err != nil {
		return nil, err
	}
	rep.Passes = []report.SignificancePass{kruskal, levene}

	for _, w := range s.writers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := w.Write(ctx, req.OutputDir, rep); err != nil {
			return nil, errors.Wrapf(err, "%s writer failed", w.Name())
		}
		s.logger.Debug("[Analysis] %s output written to %s", w.Name(), req.OutputDir)
	}

	runtime := time.Since(startTime)
	s.logger.Info("[Analysis] Run %s finished in %v (%d case studies)", runID.Short(), runtime, len(rep.Rows))

	return &AnalysisResult{
		RunID:     runID,
		Store:     store,
		Cells:     cells,
		Report:    rep,
		RuntimeMs: runtime.Milliseconds(),
	}, nil
}

func (s *AnalysisService) runPass(ctx context.Context, store *measurement.Store, req AnalysisRequest, kind significance.TestKind, exclude []measurement.Condition) (report.SignificancePass, error) {
	conds, labels := report.RemainingConditions(req.Conditions, req.Labels, exclude)
	rows := store.Export(req.Conditions, req.Parameters, exclude)
	s.logger.Debug("[Analysis] %s over %d conditions, %d values", kind.OmnibusTestName(), len(conds), len(rows))

	results, err := s.omnibus.Compute(ctx, rows, kind)
	if err != nil {
		return report.SignificancePass{}, errors.Wrapf(err, "%s failed", kind.OmnibusTestName())
	}
	return report.SignificancePass{
		Kind:       kind,
		Results:    results,
		Conditions: conds,
		Labels:     labels,
	}, nil
}

func buildRows(store *measurement.Store, cells ranking.CellRankings, req AnalysisRequest) []report.Row {
	var rows []report.Row
	for _, cs := range store.CaseStudies() {
		row := report.Row{
			CaseStudy: cs,
			Label:     string(cs),
			Means:     make(map[measurement.Parameter][]float64, len(req.Parameters)),
			Ranks:     cells[cs],
		}
		if req.CaseStudyLabel != nil {
			row.Label = req.CaseStudyLabel(cs)
		}
		for _, p := range req.Parameters {
			means := make([]float64, len(req.Conditions))
			for i, c := range req.Conditions {
				means[i] = store.Mean(cs, c, p)
			}
			row.Means[p] = means
		}
		rows = append(rows, row)
	}
	report.SortRows(rows)
	return rows
}

func validateRequest(req AnalysisRequest) error {
	if len(req.Conditions) == 0 {
		return errors.ConfigInvalid("at least one condition is required")
	}
	if len(req.Labels) != len(req.Conditions) {
		return errors.ConfigInvalid(fmt.Sprintf("%d conditions but %d labels", len(req.Conditions), len(req.Labels)))
	}
	if len(req.Parameters) == 0 {
		return errors.ConfigInvalid("at least one parameter is required")
	}
	return nil
}
