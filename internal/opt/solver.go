package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"visitplan/internal/milp"
)

// Relaxer names accepted in Config.Relaxer.
const (
	RelaxerSimplex = "simplex"
	RelaxerGonum   = "gonum"
)

// Config holds solver limits and switches.
type Config struct {
	// Workers is the number of branch-and-bound goroutines; 0 means one
	// per CPU.
	Workers int `yaml:"workers" json:"workers"`
	// TimeLimit caps a single solve; 0 means no limit.
	TimeLimit time.Duration `yaml:"timeLimit" json:"timeLimit"`
	// NodeLimit caps the branch-and-bound nodes of a single solve; 0 means
	// no limit.
	NodeLimit int    `yaml:"nodeLimit" json:"nodeLimit"`
	WarmStart bool   `yaml:"warmStart" json:"warmStart"`
	Presolve  bool   `yaml:"presolve" json:"presolve"`
	Relaxer   string `yaml:"relaxer" json:"relaxer"`
}

func DefaultConfig() Config {
	return Config{
		Workers:   0,
		TimeLimit: 30 * time.Second,
		NodeLimit: 0,
		WarmStart: true,
		Presolve:  true,
		Relaxer:   RelaxerSimplex,
	}
}

func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0 (got %d)", c.Workers)
	}
	if c.TimeLimit < 0 {
		return fmt.Errorf("time limit must be >= 0 (got %s)", c.TimeLimit)
	}
	if c.NodeLimit < 0 {
		return fmt.Errorf("node limit must be >= 0 (got %d)", c.NodeLimit)
	}
	switch c.Relaxer {
	case "", RelaxerSimplex, RelaxerGonum:
	default:
		return fmt.Errorf("unknown relaxer %q (allowed: %s, %s)", c.Relaxer, RelaxerSimplex, RelaxerGonum)
	}
	return nil
}

func (c Config) relaxer() milp.Relaxer {
	if c.Relaxer == RelaxerGonum {
		return milp.GonumRelaxer{}
	}
	return milp.SimplexRelaxer{}
}

// Progress is reported each time the search finds a shorter routing.
type Progress struct {
	Objective float64
	Nodes     int
	Elapsed   time.Duration
}

// Observer receives the outcome of every solve. status is a Result
// status on success, otherwise one of invalid, infeasible, unsolved,
// inconsistent or error.
type Observer interface {
	ObserveSolve(status string, elapsed time.Duration, nodes int)
}

// Solver runs the routing MILP. It keeps no state between solves and is
// safe for concurrent use.
type Solver struct {
	cfg      Config
	log      log.FieldLogger
	observer Observer
}

type Option func(*Solver)

// WithLogger sets the logger; the default is the logrus standard logger.
func WithLogger(l log.FieldLogger) Option { return func(s *Solver) { s.log = l } }

// WithObserver reports solve outcomes to o.
func WithObserver(o Observer) Option { return func(s *Solver) { s.observer = o } }

func NewSolver(cfg Config, opts ...Option) *Solver {
	s := &Solver{cfg: cfg, log: log.StandardLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the solver configuration.
func (s *Solver) Config() Config { return s.cfg }

// Solve validates req, solves it and returns one route per worker.
//
// Hitting a time or node limit is not an error: the best routing found is
// returned with Status StatusBudgetExceeded. Errors wrap ErrInvalidInput,
// ErrInfeasible, ErrUnsolved or ErrInconsistentSolution.
func (s *Solver) Solve(ctx context.Context, req Request, progress func(Progress)) (Result, error) {
	start := time.Now()
	res, nodes, err := s.solve(ctx, req, progress)
	if s.observer != nil {
		s.observer.ObserveSolve(outcome(res, err), time.Since(start), nodes)
	}
	return res, err
}

func (s *Solver) solve(ctx context.Context, req Request, progress func(Progress)) (Result, int, error) {
	if err := Validate(req); err != nil {
		return Result{}, 0, err
	}
	if err := s.cfg.Validate(); err != nil {
		return Result{}, 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	logger := s.log.WithFields(log.Fields{
		"locations": req.NumLocations(),
		"workers":   len(req.Workers),
	})

	f := BuildModel(req, BuildOptions{Presolve: s.cfg.Presolve})
	opts := milp.Options{
		Relaxer:   s.cfg.relaxer(),
		Workers:   s.cfg.Workers,
		NodeLimit: s.cfg.NodeLimit,
		TimeLimit: s.cfg.TimeLimit,
		Log:       logger,
	}
	if progress != nil {
		opts.OnIncumbent = func(in milp.Incumbent) {
			progress(Progress{Objective: in.Objective, Nodes: in.Nodes, Elapsed: in.Elapsed})
		}
	}
	warm := false
	if s.cfg.WarmStart {
		x := WarmStart(f, req)
		if err := f.Problem.Feasible(x, milp.DefaultIntTol); err != nil {
			logger.WithError(err).Warn("warm start rejected")
		} else {
			opts.Incumbent = x
			warm = true
			if progress != nil {
				progress(Progress{Objective: f.Problem.Objective(x), Elapsed: 0})
			}
		}
	}
	logger.WithFields(log.Fields{
		"vars":        f.Problem.NumVars(),
		"constraints": len(f.Problem.Constraints),
		"warmStart":   warm,
	}).Info("solve started")

	mr, err := milp.Solve(ctx, f.Problem, opts)
	stats := Stats{
		Nodes:        mr.Nodes,
		LPIterations: mr.LPIterations,
		Elapsed:      mr.Elapsed,
		WarmStarted:  warm,
	}
	// The bound stays at -Inf when the root relaxation never finished.
	if !math.IsInf(mr.RootBound, 0) && !math.IsNaN(mr.RootBound) {
		rb := mr.RootBound
		stats.RootBound = &rb
	}
	if err != nil {
		return Result{Stats: stats}, mr.Nodes, fmt.Errorf("branch and bound: %w", err)
	}

	var status Status
	switch mr.Status {
	case milp.StatusOptimal:
		status = StatusOptimal
	case milp.StatusFeasible:
		status = StatusBudgetExceeded
	case milp.StatusInfeasible:
		return Result{Stats: stats}, mr.Nodes, ErrInfeasible
	default:
		return Result{Stats: stats}, mr.Nodes, ErrUnsolved
	}

	routes, err := ExtractRoutes(f, mr.Values)
	if err != nil {
		logger.WithError(err).Error("route extraction failed")
		return Result{Stats: stats}, mr.Nodes, err
	}
	wr, total := Aggregate(req.Distances, req.Workers, routes)
	res := Result{
		Routes:        wr,
		TotalDistance: total,
		Status:        status,
		Optimal:       status == StatusOptimal,
		Stats:         stats,
	}
	logger.WithFields(log.Fields{
		"status":   status,
		"distance": total,
		"nodes":    mr.Nodes,
		"elapsed":  mr.Elapsed,
	}).Info("solve finished")
	return res, mr.Nodes, nil
}

func outcome(res Result, err error) string {
	switch {
	case err == nil:
		return string(res.Status)
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrInfeasible):
		return "infeasible"
	case errors.Is(err, ErrUnsolved):
		return "unsolved"
	case errors.Is(err, ErrInconsistentSolution):
		return "inconsistent"
	}
	return "error"
}
