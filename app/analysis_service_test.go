package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"errtable/adapters/excel"
	"errtable/adapters/filestore"
	"errtable/adapters/latex"
	"errtable/adapters/markdown"
	"errtable/adapters/stats"
	"errtable/domain/core"
	"errtable/domain/measurement"
	"errtable/domain/report"
	"errtable/domain/significance"
	"errtable/internal"
	"errtable/internal/errors"
	"errtable/internal/testkit"
	"errtable/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeLoader struct {
	store *measurement.Store
	err   error
}

func (l *storeLoader) Load(ctx context.Context, inputDir string, conditions []measurement.Condition, params []measurement.Parameter) (*measurement.Store, error) {
	return l.store, l.err
}

type recordingWriter struct {
	reports []*report.Report
	err     error
}

func (w *recordingWriter) Name() string { return "recording" }

func (w *recordingWriter) Write(ctx context.Context, outputDir string, rep *report.Report) error {
	w.reports = append(w.reports, rep)
	return w.err
}

func twoConditionStore() *measurement.Store {
	store := measurement.NewStore()
	for _, p := range []measurement.Parameter{1, 2} {
		store.Set("Dune", "a", p, measurement.Sample{10, 10, 10})
		store.Set("Dune", "b", p, measurement.Sample{10.5, 20, 5})
	}
	return store
}

func quietLogger() *internal.Logger {
	return internal.NewLogger(internal.LogLevelError)
}

func bdbLabel(cs measurement.CaseStudy) string {
	if cs == "BerkeleyDBC" {
		return "BDB-C"
	}
	return string(cs)
}

func twoConditionRequest() AnalysisRequest {
	return AnalysisRequest{
		Conditions: []measurement.Condition{"a", "b"},
		Labels:     []string{"A", "B"},
		Parameters: []measurement.Parameter{1, 2},
	}
}

func TestRun_NonSignificantLeaderSharesBestTier(t *testing.T) {
	tester := &testkit.FixedTester{P: 0.3}
	writer := &recordingWriter{}
	svc := NewAnalysisService(AnalysisDeps{
		Loader:  &storeLoader{store: twoConditionStore()},
		Tester:  tester,
		Omnibus: &testkit.StubOmnibus{},
		Backend: "stub",
		Writers: []ports.ReportWriter{writer},
		Logger:  quietLogger(),
	})

	res, err := svc.Run(context.Background(), twoConditionRequest())
	require.NoError(t, err)

	for _, p := range []measurement.Parameter{1, 2} {
		vec := res.Cells["Dune"][p]
		assert.True(t, vec.IsBest(0), "t=%d", p)
		assert.True(t, vec.IsBest(1), "t=%d", p)
		assert.True(t, vec.Collapsed)
		assert.True(t, res.Report.Global.Ranks[p].IsBest(1))
	}
	// one cell test and one pooled test per parameter
	assert.Equal(t, 4, tester.Calls())
	assert.False(t, res.RunID.IsEmpty())
	assert.Equal(t, 0.05, res.Report.Alpha)
	require.Len(t, writer.reports, 1)
	assert.Same(t, res.Report, writer.reports[0])
}

func TestRun_SignificantLeaderKeepsSoleBest(t *testing.T) {
	svc := NewAnalysisService(AnalysisDeps{
		Loader:  &storeLoader{store: twoConditionStore()},
		Tester:  &testkit.FixedTester{P: 0.01},
		Omnibus: &testkit.StubOmnibus{},
		Logger:  quietLogger(),
	})

	res, err := svc.Run(context.Background(), twoConditionRequest())
	require.NoError(t, err)
	vec := res.Cells["Dune"][1]
	assert.Equal(t, []int{1, 2}, vec.Ranks)
	assert.Equal(t, 1, vec.BestCount())
}

func TestRun_PassesUseTheirExclusions(t *testing.T) {
	store := twoConditionStore()
	store.Set("Dune", "twise", 1, measurement.Sample{3, 3})
	stub := &testkit.StubOmnibus{Results: map[significance.TestKind]significance.Results{
		significance.Kruskal: {1: {PValue: 0.01}},
	}}
	svc := NewAnalysisService(AnalysisDeps{
		Loader:  &storeLoader{store: store},
		Tester:  &testkit.FixedTester{P: 0.3},
		Omnibus: stub,
		Logger:  quietLogger(),
	})

	res, err := svc.Run(context.Background(), AnalysisRequest{
		Conditions:      []measurement.Condition{"a", "b", "twise"},
		Labels:          []string{"A", "B", "T"},
		Parameters:      []measurement.Parameter{1},
		RankingExclude:  []measurement.Condition{"twise"},
		VarianceExclude: []measurement.Condition{"twise"},
	})
	require.NoError(t, err)

	// twise has the lowest mean but is not ranked
	vec := res.Cells["Dune"][1]
	assert.Equal(t, 3, vec.Ranks[2])
	assert.False(t, vec.IsBest(2))
	assert.Equal(t, 3.0, res.Report.Rows[0].Means[1][2])

	assert.Len(t, stub.Rows(significance.Kruskal), 3+3+2)
	assert.Len(t, stub.Rows(significance.Levene), 3+3)

	kruskal, ok := res.Report.Pass(significance.Kruskal)
	require.True(t, ok)
	assert.Equal(t, 0.01, kruskal.Results.Omnibus(1))
	assert.Equal(t, []string{"A", "B", "T"}, kruskal.Labels)

	levene, ok := res.Report.Pass(significance.Levene)
	require.True(t, ok)
	assert.Equal(t, []measurement.Condition{"a", "b"}, levene.Conditions)
	assert.Equal(t, []string{"A", "B"}, levene.Labels)
}

func TestRun_RowsUseLabelsAndSortOrder(t *testing.T) {
	store := measurement.NewStore()
	for _, cs := range []measurement.CaseStudy{"x264", "BerkeleyDBC", "7z", "apache"} {
		store.Set(cs, "a", 1, measurement.Sample{1, 2})
	}
	svc := NewAnalysisService(AnalysisDeps{
		Loader:  &storeLoader{store: store},
		Tester:  &testkit.FixedTester{P: 0.3},
		Omnibus: &testkit.StubOmnibus{},
		Logger:  quietLogger(),
	})

	res, err := svc.Run(context.Background(), AnalysisRequest{
		Conditions:     []measurement.Condition{"a", "b"},
		Labels:         []string{"A", "B"},
		Parameters:     []measurement.Parameter{1},
		CaseStudyLabel: bdbLabel,
	})
	require.NoError(t, err)

	var labels []string
	for _, row := range res.Report.Rows {
		labels = append(labels, row.Label)
	}
	assert.Equal(t, []string{"7z", "apache", "BDB-C", "x264"}, labels)
	assert.True(t, math.IsNaN(res.Report.Rows[0].Means[1][1]))
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		loader   *storeLoader
		omnibus  *testkit.StubOmnibus
		writer   *recordingWriter
		req      AnalysisRequest
		wantCode string
	}{
		{
			name:     "label count mismatch",
			loader:   &storeLoader{store: twoConditionStore()},
			omnibus:  &testkit.StubOmnibus{},
			writer:   &recordingWriter{},
			req:      AnalysisRequest{Conditions: []measurement.Condition{"a", "b"}, Labels: []string{"A"}, Parameters: []measurement.Parameter{1}},
			wantCode: errors.CodeConfigInvalid,
		},
		{
			name:     "no parameters",
			loader:   &storeLoader{store: twoConditionStore()},
			omnibus:  &testkit.StubOmnibus{},
			writer:   &recordingWriter{},
			req:      AnalysisRequest{Conditions: []measurement.Condition{"a"}, Labels: []string{"A"}},
			wantCode: errors.CodeConfigInvalid,
		},
		{
			name:     "loader failure",
			loader:   &storeLoader{err: errors.InvalidInput("no such directory")},
			omnibus:  &testkit.StubOmnibus{},
			writer:   &recordingWriter{},
			req:      twoConditionRequest(),
			wantCode: errors.CodeInvalidInput,
		},
		{
			name:     "backend failure",
			loader:   &storeLoader{store: twoConditionStore()},
			omnibus:  &testkit.StubOmnibus{Err: errors.ExternalServiceError("rscript", fmt.Errorf("exit status 1"))},
			writer:   &recordingWriter{},
			req:      twoConditionRequest(),
			wantCode: errors.CodeExternalService,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAnalysisService(AnalysisDeps{
				Loader:  tt.loader,
				Tester:  &testkit.FixedTester{P: 0.3},
				Omnibus: tt.omnibus,
				Writers: []ports.ReportWriter{tt.writer},
				Logger:  quietLogger(),
			})
			_, err := svc.Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
			assert.Empty(t, tt.writer.reports)
		})
	}
}

func TestRun_WriterFailureIsReported(t *testing.T) {
	svc := NewAnalysisService(AnalysisDeps{
		Loader:  &storeLoader{store: twoConditionStore()},
		Tester:  &testkit.FixedTester{P: 0.3},
		Omnibus: &testkit.StubOmnibus{},
		Writers: []ports.ReportWriter{&recordingWriter{err: fmt.Errorf("disk full")}},
		Logger:  quietLogger(),
	})
	_, err := svc.Run(context.Background(), twoConditionRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording writer failed")
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_EndToEndOnGeneratedDirectory(t *testing.T) {
	cfg := testkit.DefaultConfig()
	ds, err := testkit.Generate(cfg)
	require.NoError(t, err)
	inputDir, outputDir := t.TempDir(), t.TempDir()
	require.NoError(t, testkit.WriteDir(inputDir, ds, true))

	logger := quietLogger()
	svc := NewAnalysisService(AnalysisDeps{
		Loader:  filestore.NewLoader(filestore.DefaultLoaderOptions(), logger),
		Tester:  stats.NewMannWhitney(),
		Omnibus: stats.NewOmnibusTester(),
		Backend: "native",
		Writers: []ports.ReportWriter{latex.NewWriter(), excel.NewWorkbookWriter(), markdown.NewSummaryWriter()},
		Logger:  logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := svc.Run(ctx, AnalysisRequest{
		InputDir:        inputDir,
		OutputDir:       outputDir,
		Conditions:      cfg.Conditions,
		Labels:          []string{"Distance", "T-wise", "Henard", "Random"},
		Parameters:      cfg.Parameters,
		CaseStudyLabel:  bdbLabel,
		RankingExclude:  []measurement.Condition{"rand"},
		VarianceExclude: []measurement.Condition{"twise"},
		RunID:           core.RunID("0192f0c4-aaaa-7bbb-8ccc-123456789abc"),
	})
	require.NoError(t, err)

	var labels []string
	for _, row := range res.Report.Rows {
		labels = append(labels, row.Label)
	}
	assert.Equal(t, []string{"7z", "BDB-C", "Dune", "x264"}, labels)

	for _, p := range cfg.Parameters {
		global := res.Report.Global.Ranks[p]
		assert.True(t, global.IsBest(0), "distance sampling wins at t=%d", p)
		assert.False(t, global.IsBest(3), "random is never ranked at t=%d", p)
		assert.False(t, math.IsNaN(res.Report.Global.Means[p][3]))
	}

	levene, ok := res.Report.Pass(significance.Levene)
	require.True(t, ok)
	assert.Equal(t, []measurement.Condition{"distBased", "henard", "rand"}, levene.Conditions)
	kruskal, ok := res.Report.Pass(significance.Kruskal)
	require.True(t, ok)
	assert.Len(t, kruskal.Results, len(cfg.Parameters))

	for _, name := range []string{
		latex.ErrorTableFile, "kruskalTable.tex", "mwuTable.tex", "leveneTable.tex", "fTable.tex",
		excel.WorkbookFile, markdown.MarkdownFile, markdown.HTMLFile,
	} {
		_, err := os.Stat(filepath.Join(outputDir, name))
		assert.NoError(t, err, name)
	}
}
