// Package filestore reads measurement directories and writes the flattened export.
package filestore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"errtable/domain/measurement"
	"errtable/internal"
	apperrors "errtable/internal/errors"

	"golang.org/x/sync/errgroup"
)

const (
	errorFilePrefix = "all_error_"
	errorFileSuffix = ".txt"
	logFilePrefix   = "out_"
	logFileSuffix   = ".log"
	csvSeparator    = ';'
	valueColumn     = 1
)

// LoaderOptions controls directory discovery and deterministic conditions
type LoaderOptions struct {
	// ExcludedDirs are sub-directory names that are never case studies
	ExcludedDirs []string
	// SkipSubstring excludes every sub-directory whose name contains it
	SkipSubstring string
	// Deterministic conditions are read from SPL Conqueror logs instead of error files
	Deterministic []measurement.Condition
	// Repeat is how often a deterministic scalar is repeated to form a sample
	Repeat int
	// Workers bounds how many case studies load concurrently
	Workers int
}

// DefaultLoaderOptions mirrors the layout produced by the sampling experiments
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ExcludedDirs:  []string{"SinglePlots"},
		SkipSubstring: "_norm",
		Deterministic: []measurement.Condition{"twise"},
		Repeat:        100,
		Workers:       4,
	}
}

// Loader fills a measurement store from an input directory with one
// sub-directory per case study
type Loader struct {
	opts   LoaderOptions
	logger *internal.Logger
}

// NewLoader creates a loader
func NewLoader(opts LoaderOptions, logger *internal.Logger) *Loader {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Repeat <= 0 {
		opts.Repeat = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Loader{opts: opts, logger: logger}
}

// Load reads every case study of inputDir. Absent files yield empty samples.
func (l *Loader) Load(ctx context.Context, inputDir string, conditions []measurement.Condition, params []measurement.Parameter) (*measurement.Store, error) {
	dirs, err := l.CaseStudyDirs(inputDir)
	if err != nil {
		return nil, err
	}
	l.logger.Info("[Loader] Loading %d case studies from %s", len(dirs), inputDir)

	store := measurement.NewStore()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cs := measurement.CaseStudy(filepath.Base(dir))
			cells, err := l.loadCaseStudy(dir, conditions, params)
			if err != nil {
				return fmt.Errorf("case study %s: %w", cs, err)
			}

			mu.Lock()
			defer mu.Unlock()
			store.AddCaseStudy(cs)
			for key, sample := range cells {
				store.Set(cs, key.Condition, key.Parameter, sample)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	l.logger.Debug("[Loader] Loaded %d non-empty cells", store.Len())
	return store, nil
}

// CaseStudyDirs lists the case-study sub-directories of inputDir in lexical order
func (l *Loader) CaseStudyDirs(inputDir string) ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, apperrors.InvalidInputf("cannot read input directory %s: %v", inputDir, err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || l.skipped(e.Name()) {
			continue
		}
		dirs = append(dirs, filepath.Join(inputDir, e.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (l *Loader) skipped(name string) bool {
	return skipDir(name, l.opts.ExcludedDirs, l.opts.SkipSubstring)
}

// skipDir reports whether a sub-directory is excluded by name or substring
func skipDir(name string, excluded []string, substring string) bool {
	for _, ex := range excluded {
		if name == ex {
			return true
		}
	}
	return substring != "" && strings.Contains(name, substring)
}

func (l *Loader) loadCaseStudy(dir string, conditions []measurement.Condition, params []measurement.Parameter) (map[measurement.CellKey]measurement.Sample, error) {
	cells := make(map[measurement.CellKey]measurement.Sample)
	for _, cond := range conditions {
		for _, p := range params {
			var (
				sample measurement.Sample
				err    error
			)
			if measurement.ContainsCondition(l.opts.Deterministic, cond) {
				sample, err = l.readDeterministic(DeterministicLogPath(dir, cond, p), p)
			} else {
				sample, err = ReadErrorFile(ErrorFilePath(dir, cond, p))
			}
			if err != nil {
				return nil, err
			}
			if len(sample) == 0 {
				l.logger.Trace("[Loader] No data for %s/%s/t=%d", filepath.Base(dir), cond, p)
				continue
			}
			cells[measurement.CellKey{Condition: cond, Parameter: p}] = sample
		}
	}
	return cells, nil
}

func (l *Loader) readDeterministic(path string, p measurement.Parameter) (measurement.Sample, error) {
	best, err := ReadLearningLog(path)
	if err != nil {
		return nil, err
	}
	v, ok := best[p]
	if !ok {
		return nil, nil
	}
	sample := make(measurement.Sample, l.opts.Repeat)
	for i := range sample {
		sample[i] = v
	}
	return sample, nil
}

// ErrorFilePath is all_error_<cond>_t<p>.txt inside dir
func ErrorFilePath(dir string, cond measurement.Condition, p measurement.Parameter) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s_t%d%s", errorFilePrefix, cond, p, errorFileSuffix))
}

// DeterministicLogPath is out_<cond>_t<p>.log inside dir
func DeterministicLogPath(dir string, cond measurement.Condition, p measurement.Parameter) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s_t%d%s", logFilePrefix, cond, p, logFileSuffix))
}

// ReadErrorFile reads the per-run error rates of one cell. The first row is a
// header; the value is in the second ';'-separated column. A missing file is an
// empty sample.
func ReadErrorFile(path string) (measurement.Sample, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return parseErrorRows(f, path)
}

func parseErrorRows(r io.Reader, name string) (measurement.Sample, error) {
	reader := csv.NewReader(r)
	reader.Comma = csvSeparator
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var sample measurement.Sample
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.InvalidInputf("%s: %v", name, err)
		}
		if header {
			header = false
			continue
		}
		if len(record) <= valueColumn {
			return nil, apperrors.InvalidInputf("%s: row %v has no value column", name, record)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[valueColumn]), 64)
		if err != nil {
			return nil, apperrors.InvalidInputf("%s: invalid value %q", name, record[valueColumn])
		}
		sample = append(sample, v)
	}
	return sample, nil
}
