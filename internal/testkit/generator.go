package testkit

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"errtable/adapters/filestore"
	"errtable/domain/measurement"
)

// Dataset is a synthetic measurement directory held in memory.
//
// Every random condition gets Runs error rates per (case study, parameter);
// deterministic conditions get a single value that the loader repeats.
// Condition i has a base error of BaseError + i*Step, so the first condition is
// the expected winner; errors shrink as the parameter grows.
type Dataset struct {
	CaseStudies   []measurement.CaseStudy
	Samples       map[measurement.CellKey]measurement.Sample
	Deterministic map[measurement.CellKey]float64
}

// Config controls the generator
type Config struct {
	CaseStudies   []measurement.CaseStudy
	Conditions    []measurement.Condition
	Deterministic []measurement.Condition
	Parameters    []measurement.Parameter
	Runs          int
	Seed          int64

	BaseError float64
	Step      float64
	// Spread is the relative standard deviation of the run noise
	Spread float64

	// Decoys adds an excluded directory and a "_norm" case study the loader must skip
	Decoys bool
}

// DefaultConfig mirrors a small sampling experiment
func DefaultConfig() Config {
	return Config{
		CaseStudies:   []measurement.CaseStudy{"7z", "BerkeleyDBC", "Dune", "x264"},
		Conditions:    []measurement.Condition{"distBased", "twise", "henard", "rand"},
		Deterministic: []measurement.Condition{"twise"},
		Parameters:    []measurement.Parameter{1, 2, 3},
		Runs:          20,
		Seed:          42,
		BaseError:     4,
		Step:          3,
		Spread:        0.25,
		Decoys:        true,
	}
}

// Generate builds a deterministic dataset for cfg
func Generate(cfg Config) (*Dataset, error) {
	if cfg.Runs <= 0 {
		return nil, fmt.Errorf("runs must be > 0")
	}
	if len(cfg.Conditions) == 0 || len(cfg.Parameters) == 0 || len(cfg.CaseStudies) == 0 {
		return nil, fmt.Errorf("case studies, conditions and parameters must not be empty")
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	ds := &Dataset{
		CaseStudies:   append([]measurement.CaseStudy(nil), cfg.CaseStudies...),
		Samples:       make(map[measurement.CellKey]measurement.Sample),
		Deterministic: make(map[measurement.CellKey]float64),
	}

	for k, cs := range cfg.CaseStudies {
		studyFactor := 1 + 0.2*float64(k)
		for i, cond := range cfg.Conditions {
			for _, p := range cfg.Parameters {
				key := measurement.CellKey{CaseStudy: cs, Condition: cond, Parameter: p}
				base := (cfg.BaseError + float64(i)*cfg.Step) * studyFactor / float64(p)

				if measurement.ContainsCondition(cfg.Deterministic, cond) {
					ds.Deterministic[key] = round(base, 3)
					continue
				}
				sample := make(measurement.Sample, cfg.Runs)
				for r := range sample {
					v := base + rng.NormFloat64()*cfg.Spread*base
					sample[r] = round(math.Max(0, v), 3)
				}
				ds.Samples[key] = sample
			}
		}
	}
	return ds, nil
}

// WriteDir lays the dataset out the way the loader expects
func WriteDir(dir string, ds *Dataset, decoys bool) error {
	for _, cs := range ds.CaseStudies {
		if err := os.MkdirAll(filepath.Join(dir, string(cs)), 0o755); err != nil {
			return err
		}
	}
	for key, sample := range ds.Samples {
		path := filestore.ErrorFilePath(filepath.Join(dir, string(key.CaseStudy)), key.Condition, key.Parameter)
		if err := writeErrorFile(path, sample); err != nil {
			return err
		}
	}
	for key, v := range ds.Deterministic {
		path := filestore.DeterministicLogPath(filepath.Join(dir, string(key.CaseStudy)), key.Condition, key.Parameter)
		if err := writeLearningLog(path, key.Parameter, v); err != nil {
			return err
		}
	}
	if decoys {
		return writeDecoys(dir, ds)
	}
	return nil
}

func writeErrorFile(path string, sample measurement.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write([]string{"Run", "Error"}); err != nil {
		return err
	}
	for i, v := range sample {
		if err := w.Write([]string{strconv.Itoa(i + 1), strconv.FormatFloat(v, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeLearningLog writes an SPL Conqueror style log whose best learning round has error v
func writeLearningLog(path string, p measurement.Parameter, v float64) error {
	content := fmt.Sprintf(`command: sampling twise t:%d
command: analyze-learning
Round 1;model;%s
Round 2;model;%s
Round 3;model;%s
command: clean-sampling
`, p, strconv.FormatFloat(v*1.5, 'f', -1, 64), strconv.FormatFloat(v, 'f', -1, 64), strconv.FormatFloat(v*1.1, 'f', -1, 64))
	return os.WriteFile(path, []byte(content), 0o644)
}

// writeDecoys adds directories that must never be loaded, each holding a
// wildly wrong error file
func writeDecoys(dir string, ds *Dataset) error {
	for _, name := range []string{"SinglePlots", string(ds.CaseStudies[0]) + "_norm"} {
		decoy := filepath.Join(dir, name)
		if err := os.MkdirAll(decoy, 0o755); err != nil {
			return err
		}
		for key := range ds.Samples {
			if key.CaseStudy != ds.CaseStudies[0] {
				continue
			}
			if err := writeErrorFile(filestore.ErrorFilePath(decoy, key.Condition, key.Parameter), measurement.Sample{999}); err != nil {
				return err
			}
		}
	}
	return nil
}

func round(x float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(x*p) / p
}
