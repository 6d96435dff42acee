// Package idgen provides ports.IDGenerator implementations.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/procgate/ports"
	"github.com/google/uuid"
)

// UUID generates random (version 4) UUIDs. Used for request IDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

var _ ports.IDGenerator = UUID{}

// TimeOrdered generates version 7 UUIDs, which sort by creation time.
// Record IDs use it so listing by ID is listing by age.
type TimeOrdered struct{}

// New generates a new UUID v7, falling back to v4 if the clock source fails.
func (TimeOrdered) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

var _ ports.IDGenerator = TimeOrdered{}

// Sequential generates prefix1, prefix2, ... (for tests).
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

var _ ports.IDGenerator = (*Sequential)(nil)
