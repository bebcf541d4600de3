package model

import (
	"time"

	"visitplan/internal/opt"
)

// OptimizeRequest is the transport form of a routing instance. Either
// DistanceMatrix (depot at index 0) or Addresses (patients only; the depot
// address is prepended) must be set.
type OptimizeRequest struct {
	DistanceMatrix [][]float64      `json:"distanceMatrix,omitempty" yaml:"distanceMatrix"`
	Addresses      []string         `json:"addresses,omitempty" yaml:"addresses"`
	DepotAddress   string           `json:"depotAddress,omitempty" yaml:"depotAddress"`
	WorkerNames    []string         `json:"workerNames" yaml:"workerNames"`
	Preferences    map[int]int      `json:"preferences,omitempty" yaml:"preferences"`
	Solver         *SolverOverrides `json:"solver,omitempty" yaml:"solver"`
	CallbackURL    string           `json:"callbackUrl,omitempty" yaml:"callbackUrl"`
}

// SolverOverrides narrows the server defaults for one request. Zero
// values keep the default.
type SolverOverrides struct {
	TimeLimitMs int   `json:"timeLimitMs,omitempty" yaml:"timeLimitMs"`
	NodeLimit   int   `json:"nodeLimit,omitempty" yaml:"nodeLimit"`
	Workers     int   `json:"workers,omitempty" yaml:"workers"`
	WarmStart   *bool `json:"warmStart,omitempty" yaml:"warmStart"`
}

// OptimizeResponse is the solver result plus the address of every
// location index when addresses were supplied.
type OptimizeResponse struct {
	opt.Result
	Locations []string `json:"locations,omitempty"`
}

// Job statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Job is an asynchronous solve.
type Job struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Request     OptimizeRequest   `json:"request"`
	Result      *OptimizeResponse `json:"result,omitempty"`
	Error       *JobError         `json:"error,omitempty"`
	CallbackURL string            `json:"callbackUrl,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	FinishedAt  *time.Time        `json:"finishedAt,omitempty"`
}

// Terminal reports whether the job will not change any more.
func (j Job) Terminal() bool { return j.Status == JobSucceeded || j.Status == JobFailed }

// JobError mirrors the problem document the synchronous endpoint would
// have returned.
type JobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Job event types.
const (
	EventJobQueued    = "job.queued"
	EventJobStarted   = "job.started"
	EventIncumbent    = "solve.incumbent"
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// JobEvent is published on the broker topic of its job.
type JobEvent struct {
	Type  string    `json:"type"`
	JobID string    `json:"jobId"`
	TS    time.Time `json:"ts"`
	Data  any       `json:"data,omitempty"`
}

// IncumbentEvent is the payload of solve.incumbent.
type IncumbentEvent struct {
	Distance  float64 `json:"distance"`
	Nodes     int     `json:"nodes"`
	ElapsedMs int64   `json:"elapsedMs"`
}

// JobList is a page of jobs.
type JobList struct {
	Items      []Job  `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}
