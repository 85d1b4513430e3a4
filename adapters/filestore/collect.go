package filestore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"errtable/domain/core"
	"errtable/domain/measurement"
	"errtable/domain/pformat"
	"errtable/internal"
	apperrors "errtable/internal/errors"

	"golang.org/x/sync/errgroup"
)

const (
	sdFilePrefix   = "all_sd_"
	errorRowHeader = "Run;Error"
	runSeparator   = "_"
)

// maxReportedError is the largest error the learner prints; runs at or above it
// failed to learn a model and are left out of the summary
const maxReportedError = 1.79769313486e+308

// CollectOptions controls which run directories are aggregated
type CollectOptions struct {
	// ExcludedDirs and SkipSubstring exclude case-study directories as in LoaderOptions
	ExcludedDirs  []string
	SkipSubstring string
	// Types restricts the logs to out_<type>*.log; empty collects every out_*.log
	Types []measurement.Condition
	// Workers bounds how many case studies are collected concurrently
	Workers int
}

// CollectSummary counts what one collection wrote
type CollectSummary struct {
	CaseStudies int
	Files       int
	Runs        int
	SkippedRuns int
}

// Collector turns the per-seed SPL Conqueror logs of a run directory into the
// all_error and all_sd files the loader reads:
//
//	<run-dir>/<case study>/<name>_<seed>/out_<cell>.log
//	  -> <summary-dir>/<case study>/all_error_<cell>.txt   Run;Error per seed
//	  -> <summary-dir>/<case study>/all_sd_<cell>.txt      relative standard deviation
type Collector struct {
	opts   CollectOptions
	logger *internal.Logger
}

// NewCollector creates a collector
func NewCollector(opts CollectOptions, logger *internal.Logger) *Collector {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Collector{opts: opts, logger: logger}
}

// runError is the error of one seed
type runError struct {
	seed  int
	value float64
}

// Collect aggregates every case study of runDir into summaryDir
func (c *Collector) Collect(ctx context.Context, runDir, summaryDir string) (CollectSummary, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return CollectSummary{}, apperrors.InvalidInputf("cannot read run directory %s: %v", runDir, err)
	}
	var studies []string
	for _, e := range entries {
		if e.IsDir() && !skipDir(e.Name(), c.opts.ExcludedDirs, c.opts.SkipSubstring) {
			studies = append(studies, e.Name())
		}
	}
	if len(studies) == 0 {
		return CollectSummary{}, fmt.Errorf("%w: no case-study directories in %s", core.ErrNotFound, runDir)
	}
	sort.Strings(studies)
	c.logger.Info("[Collector] Collecting %d case studies from %s", len(studies), runDir)

	var (
		mu      sync.Mutex
		summary CollectSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for _, name := range studies {
		name := name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			part, err := c.collectCaseStudy(gctx, measurement.CaseStudy(name),
				filepath.Join(runDir, name), filepath.Join(summaryDir, name))
			if err != nil {
				return fmt.Errorf("case study %s: %w", name, err)
			}

			mu.Lock()
			defer mu.Unlock()
			summary.CaseStudies++
			summary.Files += part.Files
			summary.Runs += part.Runs
			summary.SkippedRuns += part.SkippedRuns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CollectSummary{}, err
	}
	c.logger.Info("[Collector] Wrote %d cells (%d runs, %d skipped) to %s",
		summary.Files, summary.Runs, summary.SkippedRuns, summaryDir)
	return summary, nil
}

func (c *Collector) collectCaseStudy(ctx context.Context, cs measurement.CaseStudy, dir, outDir string) (CollectSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return CollectSummary{}, fmt.Errorf("reading %s: %w", dir, err)
	}

	var summary CollectSummary
	runs := make(map[string][]runError)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		seed, ok := runSeed(e.Name())
		if !ok {
			c.logger.Warn("[Collector] Skipping %s/%s: no numeric seed suffix", cs, e.Name())
			continue
		}
		if err := ctx.Err(); err != nil {
			return CollectSummary{}, err
		}
		logs, err := c.runLogs(filepath.Join(dir, e.Name()))
		if err != nil {
			return CollectSummary{}, err
		}
		for cell, path := range logs {
			v, found, err := ReadRunLog(path)
			if err != nil {
				return CollectSummary{}, fmt.Errorf("%s: %w", path, err)
			}
			if !found || v >= maxReportedError {
				c.logger.Debug("[Collector] %s seed %d: no usable model in %s", cs, seed, filepath.Base(path))
				summary.SkippedRuns++
				// the cell still gets a (possibly header-only) error file
				if _, seen := runs[cell]; !seen {
					runs[cell] = nil
				}
				continue
			}
			runs[cell] = append(runs[cell], runError{seed: seed, value: v})
		}
	}
	if len(runs) == 0 {
		c.logger.Warn("[Collector] No run logs for %s", cs)
		return summary, nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return CollectSummary{}, fmt.Errorf("creating %s: %w", outDir, err)
	}

	store := measurement.NewStore()
	for cell, kept := range runs {
		sort.Slice(kept, func(i, j int) bool { return kept[i].seed < kept[j].seed })
		key := cellKey(cs, cell)
		sample := make(measurement.Sample, len(kept))
		for i, r := range kept {
			sample[i] = r.value
		}
		store.Set(key.CaseStudy, key.Condition, key.Parameter, sample)

		if err := writeRunErrors(filepath.Join(outDir, errorFilePrefix+cell+errorFileSuffix), kept); err != nil {
			return CollectSummary{}, err
		}
		summary.Files++
		summary.Runs += len(kept)

		if len(kept) == 0 {
			c.logger.Debug("[Collector] %s: every run failed", key)
			continue
		}
		mean := store.Mean(key.CaseStudy, key.Condition, key.Parameter)
		if mean == 0 {
			c.logger.Debug("[Collector] %s: zero mean, no relative deviation", key)
			continue
		}
		rsd := store.StdDev(key.CaseStudy, key.Condition, key.Parameter) / mean
		sdPath := filepath.Join(outDir, sdFilePrefix+cell+errorFileSuffix)
		if err := os.WriteFile(sdPath, []byte(pformat.Float(rsd)+"\n"), 0o644); err != nil {
			return CollectSummary{}, fmt.Errorf("writing %s: %w", sdPath, err)
		}
		c.logger.Trace("[Collector] %s: %d runs, relative sd %s", key, len(kept), pformat.Float(rsd))
	}
	return summary, nil
}

// runLogs maps the cell name of every out_<cell>.log in dir to its path
func (c *Collector) runLogs(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	logs := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, logFileSuffix) {
			continue
		}
		cell := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), logFileSuffix)
		if cell == "" || !c.wanted(cell) {
			continue
		}
		logs[cell] = filepath.Join(dir, name)
	}
	return logs, nil
}

func (c *Collector) wanted(cell string) bool {
	if len(c.opts.Types) == 0 {
		return true
	}
	for _, t := range c.opts.Types {
		if strings.HasPrefix(cell, string(t)) {
			return true
		}
	}
	return false
}

// runSeed parses the seed from a "<name>_<seed>" directory name
func runSeed(dir string) (int, bool) {
	i := strings.LastIndex(dir, runSeparator)
	if i < 0 {
		return 0, false
	}
	seed, err := strconv.Atoi(dir[i+1:])
	if err != nil {
		return 0, false
	}
	return seed, true
}

// cellKey splits "<cond>_t<p>"; other names keep the whole name as condition
func cellKey(cs measurement.CaseStudy, cell string) measurement.CellKey {
	key := measurement.CellKey{CaseStudy: cs, Condition: measurement.Condition(cell)}
	i := strings.LastIndex(cell, "_t")
	if i <= 0 {
		return key
	}
	n, err := strconv.Atoi(cell[i+2:])
	if err != nil {
		return key
	}
	key.Condition = measurement.Condition(cell[:i])
	key.Parameter = measurement.Parameter(n)
	return key
}

func writeRunErrors(path string, runs []runError) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	fmt.Fprintln(bw, errorRowHeader)
	for _, r := range runs {
		fmt.Fprintf(bw, "%d%c%s\n", r.seed, csvSeparator, pformat.Float(r.value))
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
