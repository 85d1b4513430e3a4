package significance

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"errtable/domain/measurement"
	apperrors "errtable/internal/errors"
)

// Parse reads the block-structured output of the statistics backend:
//
//	t=1
//	Kruskal_p=0.0003
//	distBased - rand;0.012;0.71
//	distBased - twise;0.4
//
// A block starts at a "t=" marker. The omnibus line is "<Name>_p=<value>".
// Pairwise lines carry a label, a p-value and an optional effect size separated by
// ';'. Blank lines are ignored.
func Parse(r io.Reader) (Results, error) {
	results := make(Results)
	scanner := bufio.NewScanner(r)

	var (
		current measurement.Parameter
		inBlock bool
		block   OmnibusResult
		hasP    bool
		lineNo  int
	)
	flush := func() {
		if inBlock && hasP {
			results[current] = block
		}
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "t="):
			flush()
			param, err := measurement.ParseParameter(line)
			if err != nil {
				return nil, apperrors.InvalidInputf("line %d: %v", lineNo, err)
			}
			current, inBlock, hasP = param, true, false
			block = OmnibusResult{}
		case strings.Contains(line, ";"):
			if !inBlock {
				return nil, apperrors.InvalidInputf("line %d: pairwise record before any t= marker", lineNo)
			}
			rec, err := parsePairwise(line)
			if err != nil {
				return nil, apperrors.InvalidInputf("line %d: %v", lineNo, err)
			}
			block.Pairwise = append(block.Pairwise, rec)
		case strings.Contains(line, "_p="):
			if !inBlock {
				return nil, apperrors.InvalidInputf("line %d: omnibus p-value before any t= marker", lineNo)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(line[strings.Index(line, "=")+1:]), 64)
			if err != nil {
				return nil, apperrors.InvalidInputf("line %d: invalid omnibus p-value: %v", lineNo, err)
			}
			block.PValue, hasP = v, true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading test output: %w", err)
	}
	flush()
	return results, nil
}

func parsePairwise(line string) (PairwiseRecord, error) {
	fields := strings.Split(line, ";")
	if len(fields) != 2 && len(fields) != 3 {
		return PairwiseRecord{}, fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}
	rec := PairwiseRecord{Label: strings.TrimSpace(fields[0])}
	p, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return PairwiseRecord{}, fmt.Errorf("invalid p-value: %w", err)
	}
	rec.PValue = p
	if len(fields) == 3 {
		eff, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return PairwiseRecord{}, fmt.Errorf("invalid effect size: %w", err)
		}
		rec.EffectSize, rec.HasEffect = eff, true
	}
	return rec, nil
}

// Write renders results in the format Parse reads, parameters ascending
func Write(w io.Writer, results Results, omnibusName string) error {
	for _, p := range results.Parameters() {
		res := results[p]
		if _, err := fmt.Fprintf(w, "t=%d\n%s_p=%s\n", p, omnibusName, strconv.FormatFloat(res.PValue, 'g', -1, 64)); err != nil {
			return err
		}
		for _, rec := range res.Pairwise {
			line := rec.Label + ";" + strconv.FormatFloat(rec.PValue, 'g', -1, 64)
			if rec.HasEffect {
				line += ";" + strconv.FormatFloat(rec.EffectSize, 'g', -1, 64)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}
