// Package report holds the fully derived result of one analysis run, the input
// of every renderer.
package report

import (
	"sort"
	"strings"
	"time"

	"errtable/domain/core"
	"errtable/domain/measurement"
	"errtable/domain/ranking"
	"errtable/domain/significance"
)

// Row is one case study of the error-rate table
type Row struct {
	CaseStudy measurement.CaseStudy
	Label     string
	// Means[param][i] is the mean of Conditions[i], NaN when absent
	Means map[measurement.Parameter][]float64
	Ranks map[measurement.Parameter]ranking.RankVector
}

// SignificancePass is one omnibus question and its results
type SignificancePass struct {
	Kind    significance.TestKind
	Results significance.Results
	// Conditions tested, in display order, with their labels
	Conditions []measurement.Condition
	Labels     []string
}

// Report is everything a renderer needs
type Report struct {
	RunID      core.RunID
	CreatedAt  time.Time
	Backend    string
	Alpha      float64
	Conditions []measurement.Condition
	Labels     []string
	Parameters []measurement.Parameter
	Rows       []Row
	Global     *ranking.GlobalRanking
	Passes     []SignificancePass
}

// Label returns the display label of condition i
func (r *Report) Label(i int) string {
	if i < len(r.Labels) {
		return r.Labels[i]
	}
	return string(r.Conditions[i])
}

// Pass returns the significance pass of kind, if any
func (r *Report) Pass(kind significance.TestKind) (SignificancePass, bool) {
	for _, p := range r.Passes {
		if p.Kind == kind {
			return p, true
		}
	}
	return SignificancePass{}, false
}

// SortRows orders case studies by the lowercase first letter of their directory
// name, ties broken by the full name. Display labels do not affect the order.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		ki, kj := firstLower(string(rows[i].CaseStudy)), firstLower(string(rows[j].CaseStudy))
		if ki != kj {
			return ki < kj
		}
		return rows[i].CaseStudy < rows[j].CaseStudy
	})
}

func firstLower(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(s[:1])
}

// RemainingConditions drops excluded conditions, keeping labels aligned
func RemainingConditions(conds []measurement.Condition, labels []string, exclude []measurement.Condition) ([]measurement.Condition, []string) {
	var outC []measurement.Condition
	var outL []string
	for i, c := range conds {
		if measurement.ContainsCondition(exclude, c) {
			continue
		}
		outC = append(outC, c)
		if i < len(labels) {
			outL = append(outL, labels[i])
		} else {
			outL = append(outL, string(c))
		}
	}
	return outC, outL
}
