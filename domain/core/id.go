package core

import (
	"github.com/google/uuid"
)

// RunID identifies one analysis run. Renderers print it and the external
// test runner uses it to name its scratch directory.
type RunID string

// NewRunID creates a time-ordered run identifier (UUID v7, v4 fallback)
func NewRunID() RunID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return RunID(id.String())
}

// String returns the string representation
func (id RunID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id RunID) IsEmpty() bool {
	return id == ""
}

// Short returns the first eight characters, enough to tell runs apart in logs
func (id RunID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}
