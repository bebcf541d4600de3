package opt

import (
	"errors"
	"time"
)

// Request is a validated optimization instance. Location 0 of Distances
// is the depot; Preferences maps every other location to the index of
// the worker that must visit it.
type Request struct {
	Distances   [][]float64
	Workers     []string
	Preferences map[int]int
}

// NumLocations returns n, the depot included.
func (r Request) NumLocations() int { return len(r.Distances) }

// Status tells whether a result is proven optimal.
type Status string

const (
	StatusOptimal        Status = "optimal"
	StatusBudgetExceeded Status = "budget_exceeded"
)

// WorkerRoute is one worker's closed tour starting and ending at the depot.
type WorkerRoute struct {
	Worker   string  `json:"worker"`
	Route    []int   `json:"route"`
	Distance float64 `json:"distance"`
}

// Stats describes the search that produced a result.
type Stats struct {
	Nodes        int           `json:"nodes"`
	LPIterations int           `json:"lpIterations"`
	RootBound    *float64      `json:"rootBound,omitempty"`
	Elapsed      time.Duration `json:"elapsedNs"`
	WarmStarted  bool          `json:"warmStarted"`
}

// Result holds one route per worker, in worker input order.
type Result struct {
	Routes        []WorkerRoute `json:"routes"`
	TotalDistance float64       `json:"totalDistance"`
	Status        Status        `json:"status"`
	Optimal       bool          `json:"optimal"`
	Stats         Stats         `json:"stats"`
}

var (
	// ErrInvalidInput marks requests rejected before any model is built.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInfeasible means no assignment satisfies the preference and
	// routing constraints together.
	ErrInfeasible = errors.New("no feasible routing")
	// ErrUnsolved means the search budget ran out before any feasible
	// routing was found.
	ErrUnsolved = errors.New("search budget exhausted without a feasible routing")
	// ErrInconsistentSolution means the solver returned arcs that do not
	// form closed depot tours.
	ErrInconsistentSolution = errors.New("inconsistent solution")
)
