package opt

import (
	"fmt"
	"math"
	"strings"
)

// Validate checks a request before any model work. Every failure wraps
// ErrInvalidInput. Diagonal entries may hold any finite non-negative
// value; self-loops are excluded from the model and cost nothing in
// reported distances.
func Validate(req Request) error {
	n := len(req.Distances)
	if n == 0 {
		return fmt.Errorf("%w: distance matrix is empty", ErrInvalidInput)
	}
	for i, row := range req.Distances {
		if len(row) != n {
			return fmt.Errorf("%w: distance matrix row %d has %d entries, want %d", ErrInvalidInput, i, len(row), n)
		}
		for j, d := range row {
			if math.IsNaN(d) || math.IsInf(d, 0) {
				return fmt.Errorf("%w: distance[%d][%d] is not finite", ErrInvalidInput, i, j)
			}
			if d < 0 {
				return fmt.Errorf("%w: distance[%d][%d] = %g is negative", ErrInvalidInput, i, j, d)
			}
		}
	}

	m := len(req.Workers)
	if m == 0 {
		return fmt.Errorf("%w: at least one worker is required", ErrInvalidInput)
	}
	for k, name := range req.Workers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: worker %d has an empty name", ErrInvalidInput, k)
		}
	}

	for j := 1; j < n; j++ {
		k, ok := req.Preferences[j]
		if !ok {
			return fmt.Errorf("%w: location %d has no preferred worker", ErrInvalidInput, j)
		}
		if k < 0 || k >= m {
			return fmt.Errorf("%w: location %d prefers worker %d, have %d workers", ErrInvalidInput, j, k, m)
		}
	}
	for j := range req.Preferences {
		if j < 1 || j >= n {
			return fmt.Errorf("%w: preference for unknown location %d", ErrInvalidInput, j)
		}
	}
	return nil
}

// RoundRobin assigns location j to worker j mod m, the rule used when a
// caller supplies no preferences at all.
func RoundRobin(n, m int) map[int]int {
	prefs := make(map[int]int, n)
	if m <= 0 {
		return prefs
	}
	for j := 1; j < n; j++ {
		prefs[j] = j % m
	}
	return prefs
}
