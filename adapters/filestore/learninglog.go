package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"errtable/domain/measurement"
	apperrors "errtable/internal/errors"
)

// infinitySymbol is how the learner prints an unbounded error
const infinitySymbol = "∞"

// ReadLearningLog extracts the best (minimum) error of every t-wise run recorded in
// an SPL Conqueror log. A missing file yields no results.
func ReadLearningLog(path string) (map[measurement.Parameter]float64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[measurement.Parameter]float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ParseLearningLog(f)
}

// ParseLearningLog scans command blocks:
//
//	command: ... twise t:2          selects the parameter
//	command: analyze-learning       starts collecting ';' result lines
//	command: learn-python           the block reports one "Error rate" fraction
//	command: clean-sampling         closes the block
//
// The error is the last field of each result line; the minimum wins. A python
// learner block reports the first error rate in percent instead.
func ParseLearningLog(r io.Reader) (map[measurement.Parameter]float64, error) {
	result := make(map[measurement.Parameter]float64)

	var (
		current  measurement.Parameter
		hasParam bool
		block    errorBlock
	)
	flush := func() {
		if v, ok := block.value(); hasParam && ok {
			result[current] = v
		}
		hasParam = false
		block = errorBlock{}
	}

	err := scanLines(r, func(lineNo int, line string) error {
		if strings.Contains(line, "command:") {
			switch {
			case strings.Contains(line, "clean-sampling"):
				flush()
			case strings.Contains(line, " twise "):
				fields := strings.Fields(line)
				p, err := parseTwiseOption(fields[len(fields)-1])
				if err != nil {
					return apperrors.InvalidInputf("learning log line %d: %v", lineNo, err)
				}
				current, hasParam = p, true
			default:
				block.command(line)
			}
			return nil
		}
		if err := block.result(line); err != nil {
			return apperrors.InvalidInputf("learning log line %d: %v", lineNo, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	flush()
	return result, nil
}

// ReadRunLog reads the error of one sampling run from path
func ReadRunLog(path string) (float64, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ParseRunLog(f)
}

// ParseRunLog returns the error of a whole run log: the first python learner
// error rate in percent when one is reported, otherwise the minimum over every
// analyze-learning result line. Unlike ParseLearningLog, clean-sampling only
// pauses collection. found is false when the log holds no result at all.
func ParseRunLog(r io.Reader) (value float64, found bool, err error) {
	var block errorBlock
	err = scanLines(r, func(lineNo int, line string) error {
		if strings.Contains(line, "command") {
			block.command(line)
			return nil
		}
		if err := block.result(line); err != nil {
			return apperrors.InvalidInputf("run log line %d: %v", lineNo, err)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	value, found = block.value()
	return value, found, nil
}

// errorBlock collects the result lines that follow learning commands
type errorBlock struct {
	analyzing bool
	python    bool

	best    float64
	hasBest bool

	pythonRate float64
	hasPython  bool
}

func (b *errorBlock) command(line string) {
	switch {
	case strings.Contains(line, "command: analyze-learning"):
		b.analyzing = true
	case strings.Contains(line, "command: learn-python"):
		b.python = true
	case strings.Contains(line, "command: clean-sampling"):
		b.analyzing = false
	}
}

func (b *errorBlock) result(line string) error {
	switch {
	case b.python && strings.Contains(line, "Error rate"):
		if b.hasPython {
			return nil
		}
		fields := strings.Fields(line)
		v, err := parseErrorValue(fields[len(fields)-1])
		if err != nil {
			return fmt.Errorf("invalid error rate: %w", err)
		}
		b.pythonRate, b.hasPython = v*100, true
	case !b.python && b.analyzing && strings.Contains(line, ";"):
		fields := strings.Split(strings.TrimSpace(line), ";")
		v, err := parseErrorValue(fields[len(fields)-1])
		if err != nil {
			return fmt.Errorf("invalid error value: %w", err)
		}
		if !b.hasBest || v < b.best {
			b.best, b.hasBest = v, true
		}
	}
	return nil
}

func (b *errorBlock) value() (float64, bool) {
	if b.hasPython {
		return b.pythonRate, true
	}
	return b.best, b.hasBest
}

// parseErrorValue accepts the learner's overflow forms: "∞" and doubles beyond
// float64 range are +Inf
func parseErrorValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == infinitySymbol {
		return math.Inf(1), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return v, nil
		}
		return 0, err
	}
	return v, nil
}

func scanLines(r io.Reader, fn func(lineNo int, line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := fn(lineNo, scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading log: %w", err)
	}
	return nil
}

// parseTwiseOption parses "t:2"
func parseTwiseOption(tok string) (measurement.Parameter, error) {
	_, value, ok := strings.Cut(tok, ":")
	if !ok {
		return 0, fmt.Errorf("expected t:<n>, got %q", tok)
	}
	return measurement.ParseParameter(value)
}
