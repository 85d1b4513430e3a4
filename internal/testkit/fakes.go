package testkit

import (
	"context"
	"sync"

	"errtable/domain/measurement"
	"errtable/domain/significance"
)

// FixedTester is a two-sample tester returning a constant p-value
type FixedTester struct {
	P     float64
	mu    sync.Mutex
	calls int
}

// PValue returns t.P
func (t *FixedTester) PValue(a, b []float64) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return t.P, nil
}

// Calls returns how often PValue ran
func (t *FixedTester) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// StubOmnibus returns canned results per test kind and records the rows it saw
type StubOmnibus struct {
	Results map[significance.TestKind]significance.Results
	Err     error

	mu   sync.Mutex
	seen map[significance.TestKind][]measurement.ExportRow
}

// Compute returns the canned result for kind
func (s *StubOmnibus) Compute(ctx context.Context, rows []measurement.ExportRow, kind significance.TestKind) (significance.Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[significance.TestKind][]measurement.ExportRow)
	}
	s.seen[kind] = rows
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Results[kind], nil
}

// Rows returns the rows passed for kind
func (s *StubOmnibus) Rows(kind significance.TestKind) []measurement.ExportRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[kind]
}
