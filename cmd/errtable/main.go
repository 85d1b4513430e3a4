package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"errtable/adapters/excel"
	"errtable/adapters/filestore"
	"errtable/adapters/latex"
	"errtable/adapters/markdown"
	"errtable/adapters/rscript"
	"errtable/adapters/stats"
	"errtable/app"
	"errtable/domain/core"
	"errtable/domain/measurement"
	"errtable/domain/significance"
	"errtable/internal"
	"errtable/internal/config"
	"errtable/internal/errors"
	"errtable/internal/testkit"
	"errtable/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "errtable",
		Short:         "Ranked, significance-aware error-rate tables for sampling strategies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newReportCmd(),
		newGenerateCmd(),
		newShowCmd(),
		newCollectCmd(),
		newOmnibusCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "errtable: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newReportCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "report <input-dir> <types> <labels> <output-dir>",
		Short: "Rank strategies and write the LaTeX, Excel and Markdown reports",
		Long: `Load the error rates of every case study in <input-dir>, rank the sampling
strategies per case study and parameter, run the Kruskal-Wallis and Levene passes,
and write the tables into <output-dir>.

<types> and <labels> are comma-separated lists of equal length; each label is the
display name of the type at the same position.

Configuration is read from the environment (and an optional .env file):
- ERRTABLE_BACKEND=native|rscript (default: native)
- RSCRIPT_PATH, RSCRIPT_SCRIPT, ERRTABLE_TIMEOUT, ERRTABLE_KEEP_WORKDIR
- ERRTABLE_ALPHA (default: 0.05), ERRTABLE_WORKERS (default: 4)
- ERRTABLE_PROFILE (YAML analysis profile), LOG_LEVEL

Example: errtable report ./results distBased,henard,rand Distance,Henard,Random ./paper/tables`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if backend != "" {
				cfg.Backend.Kind = backend
			}
			req, err := buildRequest(cfg, args)
			if err != nil {
				return err
			}
			return runReport(cmd.Context(), cfg, req)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Omnibus test backend (native or rscript); overrides ERRTABLE_BACKEND")

	return cmd
}

func newGenerateCmd() *cobra.Command {
	var seed int64
	var runs int
	var decoys bool

	cmd := &cobra.Command{
		Use:   "generate <output-dir>",
		Short: "Write a synthetic measurement directory",
		Long: `Write a deterministic synthetic input directory with four case studies and the
strategies distBased, twise, henard and rand at t=1..3.

Example: errtable generate ./demo --seed 7 && errtable report ./demo distBased,twise,henard,rand D,T,H,R ./demo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := testkit.DefaultConfig()
			gen.Seed = seed
			gen.Runs = runs
			ds, err := testkit.Generate(gen)
			if err != nil {
				return errors.InvalidInput(err.Error())
			}
			if err := os.MkdirAll(args[0], 0o755); err != nil {
				return err
			}
			if err := testkit.WriteDir(args[0], ds, decoys); err != nil {
				return fmt.Errorf("writing synthetic data: %w", err)
			}
			fmt.Printf("Wrote %d case studies to %s\n", len(ds.CaseStudies), args[0])
			return nil
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic generation")
	cmd.Flags().IntVar(&runs, "runs", 20, "Runs per random strategy and cell")
	cmd.Flags().BoolVar(&decoys, "decoys", false, "Also write directories the loader must skip")

	return cmd
}

func newShowCmd() *cobra.Command {
	var sheet string
	var list bool

	cmd := &cobra.Command{
		Use:   "show <output-dir>",
		Short: "Print a sheet of a previously written workbook",
		Long: `Read table.xlsx from <output-dir> and print one sheet as an aligned table.
Without --sheet the error-rate sheet is shown; --list prints the sheet names.

Example: errtable show ./paper/tables --sheet Kruskal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.OutOrStdout(), filepath.Join(args[0], excel.WorkbookFile), sheet, list)
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", excel.ErrorSheet, "Sheet to print")
	cmd.Flags().BoolVar(&list, "list", false, "List the sheet names instead")

	return cmd
}

func runShow(w io.Writer, path, sheet string, list bool) error {
	reader := excel.NewDataReader(path)
	if list {
		names, err := reader.SheetNames()
		if err != nil {
			return errors.InvalidInputf("cannot open %s: %v", path, err)
		}
		fmt.Fprintln(w, strings.Join(names, "\n"))
		return nil
	}

	data, err := reader.ReadData(sheet)
	if err != nil {
		return errors.InvalidInputf("cannot read sheet %q of %s: %v", sheet, path, err)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(data.Headers, "\t"))
	for _, row := range data.Rows {
		cells := make([]string, len(data.Headers))
		for i, h := range data.Headers {
			cells[i] = row[h]
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func newCollectCmd() *cobra.Command {
	var types string

	cmd := &cobra.Command{
		Use:   "collect <run-dir> <summary-dir>",
		Short: "Aggregate per-seed SPL Conqueror logs into error and deviation files",
		Long: `Walk <run-dir>/<case study>/<name>_<seed>/out_<cell>.log, take the best error of
every log and write <summary-dir>/<case study>/all_error_<cell>.txt (one Run;Error
row per seed) and all_sd_<cell>.txt (relative standard deviation). Runs whose learner
failed are left out. The summary directory is the input of errtable report.

Example: errtable collect ./runs ./results --types distBased,henard,rand`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runCollect(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], args[1], measurement.ParseConditions(types))
		},
	}

	cmd.Flags().StringVar(&types, "types", "", "Comma-separated types to collect; empty collects every log")

	return cmd
}

func runCollect(ctx context.Context, w io.Writer, cfg *config.Config, runDir, summaryDir string, types []measurement.Condition) error {
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level))
	collector := filestore.NewCollector(filestore.CollectOptions{
		ExcludedDirs:  cfg.Profile.ExcludedDirectories,
		SkipSubstring: cfg.Profile.SkipSubstring,
		Types:         types,
		Workers:       cfg.Analysis.Workers,
	}, logger)

	summary, err := collector.Collect(ctx, runDir, summaryDir)
	if core.IsNotFoundError(err) {
		return errors.ConfigInvalid(err.Error())
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Collected %d case studies: %d cells, %d runs (%d skipped) into %s\n",
		summary.CaseStudies, summary.Files, summary.Runs, summary.SkippedRuns, summaryDir)
	return nil
}

func newOmnibusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "omnibus <in.csv> <out.csv> <kruskal|levene>",
		Short: "Run the in-process significance tests on an export file",
		Long: `Read a CaseStudy;Strategy;t;Result export and write the omnibus and pairwise
results in the block format the rscript backend produces. The arguments match the
R script, so the command can stand in for it via RSCRIPT_PATH and RSCRIPT_SCRIPT.

Example: errtable omnibus in.csv out.csv kruskal`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOmnibus(cmd.Context(), args[0], args[1], significance.TestKind(args[2]))
		},
	}
}

func runOmnibus(ctx context.Context, inPath, outPath string, kind significance.TestKind) error {
	if !kind.Valid() {
		return errors.ConfigInvalidf("unknown test kind %q; use %s or %s", kind, significance.Kruskal, significance.Levene)
	}

	in, err := os.Open(inPath)
	if err != nil {
		return errors.InvalidInputf("cannot open %s: %v", inPath, err)
	}
	defer in.Close()
	rows, err := filestore.ReadExport(in)
	if err != nil {
		return errors.Wrapf(err, "reading %s", inPath)
	}

	results, err := stats.NewOmnibusTester().Compute(ctx, rows, kind)
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	if err := significance.Write(out, results, omnibusLabel(kind)); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	return out.Close()
}

// omnibusLabel is the "<Name>" of the "<Name>_p=" line
func omnibusLabel(kind significance.TestKind) string {
	if kind == significance.Levene {
		return "Levene"
	}
	return "Kruskal"
}

// buildRequest validates the positional arguments before any computation
func buildRequest(cfg *config.Config, args []string) (app.AnalysisRequest, error) {
	inputDir, outputDir := args[0], args[3]
	conditions := measurement.ParseConditions(args[1])
	labels := measurement.ParseLabels(args[2])

	if len(conditions) == 0 {
		return app.AnalysisRequest{}, errors.ConfigInvalid("no types given")
	}
	if len(conditions) != len(labels) {
		return app.AnalysisRequest{}, errors.ConfigInvalidf("%d types but %d labels; both lists must have the same length", len(conditions), len(labels))
	}
	for _, dir := range []string{inputDir, outputDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return app.AnalysisRequest{}, errors.ConfigInvalidf("directory %s does not exist", dir)
		}
	}

	return app.AnalysisRequest{
		InputDir:        inputDir,
		OutputDir:       outputDir,
		Conditions:      conditions,
		Labels:          labels,
		Parameters:      cfg.Profile.ParameterList(),
		CaseStudyLabel:  cfg.Profile.Label,
		RankingExclude:  config.Conditions(cfg.Profile.RankingExclude),
		VarianceExclude: config.Conditions(cfg.Profile.VarianceExclude),
	}, nil
}

func runReport(ctx context.Context, cfg *config.Config, req app.AnalysisRequest) error {
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level))

	omnibus, err := newOmnibus(cfg, logger)
	if err != nil {
		return err
	}

	loader := filestore.NewLoader(filestore.LoaderOptions{
		ExcludedDirs:  cfg.Profile.ExcludedDirectories,
		SkipSubstring: cfg.Profile.SkipSubstring,
		Deterministic: config.Conditions(cfg.Profile.Deterministic),
		Repeat:        cfg.Profile.DeterministicRepeat,
		Workers:       cfg.Analysis.Workers,
	}, logger)

	svc := app.NewAnalysisService(app.AnalysisDeps{
		Loader:  loader,
		Tester:  stats.NewMannWhitney(),
		Alpha:   cfg.Analysis.Alpha,
		Omnibus: omnibus,
		Backend: cfg.Backend.Kind,
		Writers: []ports.ReportWriter{
			latex.NewWriter(),
			excel.NewWorkbookWriter(),
			markdown.NewSummaryWriter(),
		},
		Logger: logger,
	})

	res, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s: %d case studies, tables written to %s (%d ms)\n",
		res.RunID, len(res.Report.Rows), req.OutputDir, res.RuntimeMs)
	return nil
}

func newOmnibus(cfg *config.Config, logger *internal.Logger) (ports.OmnibusTester, error) {
	switch cfg.Backend.Kind {
	case config.BackendNative:
		return stats.NewOmnibusTester(), nil
	case config.BackendRscript:
		return rscript.NewRunner(rscript.Config{
			Command:     cfg.Backend.RscriptPath,
			Script:      cfg.Backend.RscriptScript,
			Timeout:     cfg.Backend.Timeout,
			KeepWorkDir: cfg.Backend.KeepWorkDir,
		}, logger), nil
	default:
		return nil, errors.ConfigInvalidf("unknown backend %q", cfg.Backend.Kind)
	}
}
