// Package rscript runs omnibus tests through an external R script.
package rscript

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"errtable/adapters/filestore"
	"errtable/domain/core"
	"errtable/domain/measurement"
	"errtable/domain/significance"
	"errtable/internal"
	apperrors "errtable/internal/errors"
)

const serviceName = "rscript"

// Config locates the interpreter and the test script
type Config struct {
	Command string        // e.g. "Rscript"
	Script  string        // path to PerformKruskalWallis.R
	Timeout time.Duration // zero means no extra timeout
	// KeepWorkDir leaves the temporary in.csv/out.csv behind for inspection
	KeepWorkDir bool
}

// Runner implements ports.OmnibusTester by invoking
//
//	<Command> <Script> <in.csv> <out.csv> kruskal|levene
//
// in a fresh temporary directory and parsing out.csv.
type Runner struct {
	cfg    Config
	logger *internal.Logger
}

// NewRunner creates a runner
func NewRunner(cfg Config, logger *internal.Logger) *Runner {
	if cfg.Command == "" {
		cfg.Command = "Rscript"
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Compute writes rows, runs the script and parses its results. Any failure of
// the external process is fatal for the run.
func (r *Runner) Compute(ctx context.Context, rows []measurement.ExportRow, kind significance.TestKind) (significance.Results, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown test kind %q", kind)
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	workDir, err := os.MkdirTemp("", "errtable-"+core.NewRunID().Short()+"-")
	if err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	if r.cfg.KeepWorkDir {
		r.logger.Info("[Rscript] Work directory: %s", workDir)
	} else {
		defer os.RemoveAll(workDir)
	}

	in := filepath.Join(workDir, "in.csv")
	out := filepath.Join(workDir, "out.csv")
	if err := filestore.WriteExportFile(in, rows); err != nil {
		return nil, err
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Script, in, out, string(kind))
	cmd.Dir = workDir
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	r.logger.Debug("[Rscript] Running %s", strings.Join(cmd.Args, " "))

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, apperrors.ExternalServiceError(serviceName, err)
	}
	r.logger.Debug("[Rscript] %s test finished in %v", kind, time.Since(start))

	f, err := os.Open(out)
	if err != nil {
		return nil, apperrors.ExternalServiceError(serviceName, fmt.Errorf("reading %s: %w", out, err))
	}
	defer f.Close()

	results, err := significance.Parse(f)
	if err != nil {
		return nil, apperrors.Wrapf(err, "parsing %s output", serviceName)
	}
	return results, nil
}
