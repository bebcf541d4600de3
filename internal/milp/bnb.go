package milp

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Status is the outcome of a branch-and-bound search.
type Status int

const (
	// StatusOptimal: the tree was exhausted and the incumbent is proven optimal.
	StatusOptimal Status = iota
	// StatusFeasible: a budget or cancellation stopped the search with an incumbent.
	StatusFeasible
	// StatusInfeasible: the tree was exhausted without an integer solution.
	StatusInfeasible
	// StatusUnsolved: the search stopped before any integer solution was found.
	StatusUnsolved
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnsolved:
		return "unsolved"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

const (
	DefaultIntTol = 1e-6
	pruneTol      = 1e-9
)

// Incumbent describes an improved solution reported through OnIncumbent.
type Incumbent struct {
	Objective float64
	Nodes     int
	Elapsed   time.Duration
}

// Options tunes Solve. The zero value is usable.
type Options struct {
	// Relaxer solves node relaxations; nil means SimplexRelaxer{}.
	Relaxer Relaxer
	// Workers is the number of concurrent node solvers; <= 0 means GOMAXPROCS.
	Workers int
	// IntTol is the integrality tolerance; 0 means DefaultIntTol.
	IntTol float64
	// NodeLimit caps the number of nodes solved; 0 means no limit.
	NodeLimit int
	// TimeLimit caps wall-clock time; 0 means no limit.
	TimeLimit time.Duration
	// Incumbent is an optional known feasible point. It is ignored when
	// it does not satisfy the problem.
	Incumbent []float64
	// OnIncumbent is called whenever the incumbent strictly improves. It
	// may be called from several goroutines, one call at a time, and must
	// not block.
	OnIncumbent func(Incumbent)
	// Log receives debug progress; nil means the logrus standard logger.
	Log log.FieldLogger
}

// Result is what Solve found. Values is nil when Status is
// StatusInfeasible or StatusUnsolved. RootBound is -Inf when the root
// relaxation was not solved.
type Result struct {
	Status       Status
	Values       []float64
	Objective    float64
	RootBound    float64
	Nodes        int
	LPIterations int
	Elapsed      time.Duration
}

// Proven reports whether the search finished without hitting a budget.
func (r Result) Proven() bool {
	return r.Status == StatusOptimal || r.Status == StatusInfeasible
}

// Solve minimizes p with LP-based branch and bound. Budgets and
// cancellation of ctx end the search early without an error; the result
// then carries the best incumbent, if any. An error is returned for
// malformed problems, an unbounded relaxation, or a relaxer failure.
func Solve(ctx context.Context, p *Problem, opts Options) (Result, error) {
	if err := p.Check(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}

	s := newSearch(p, opts, start)
	if opts.Incumbent != nil {
		if err := p.Feasible(opts.Incumbent, s.intTol); err != nil {
			s.log.WithError(err).Debug("initial incumbent rejected")
		} else {
			s.inc.tryImprove(opts.Incumbent, p.Objective(opts.Incumbent))
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, s.pool.stop)
	defer stop()

	s.pool.push(&node{bound: math.Inf(-1)})
	for w := 0; w < workers; w++ {
		g.Go(func() error { return s.work(gctx) })
	}
	err := g.Wait()

	res := Result{
		RootBound:    s.rootBound,
		Nodes:        int(s.nodes.Load()),
		LPIterations: int(s.iters.Load()),
		Elapsed:      time.Since(start),
	}
	if err != nil {
		return res, err
	}
	proven := !s.incomplete.Load() && s.pool.len() == 0
	values, obj, ok := s.inc.get()
	switch {
	case ok && proven:
		res.Status = StatusOptimal
	case ok:
		res.Status = StatusFeasible
	case proven:
		res.Status = StatusInfeasible
	default:
		res.Status = StatusUnsolved
	}
	if ok {
		res.Values, res.Objective = values, obj
	}
	s.log.WithFields(log.Fields{
		"status":    res.Status.String(),
		"nodes":     res.Nodes,
		"objective": res.Objective,
		"bound":     res.RootBound,
		"elapsed":   res.Elapsed,
	}).Debug("branch and bound finished")
	return res, nil
}

type search struct {
	p       *Problem
	lower   []float64
	upper   []float64
	relaxer Relaxer
	intTol  float64
	limit   int64
	start   time.Time
	onInc   func(Incumbent)
	log     log.FieldLogger

	pool      *pool
	inc       incumbent
	nodes     atomic.Int64
	iters     atomic.Int64
	rootBound float64

	// incomplete is set whenever a node is abandoned without being
	// fully explored.
	incomplete atomic.Bool
}

func newSearch(p *Problem, opts Options, start time.Time) *search {
	s := &search{
		p:       p,
		relaxer: opts.Relaxer,
		intTol:  opts.IntTol,
		limit:   int64(opts.NodeLimit),
		start:   start,
		onInc:   opts.OnIncumbent,
		log:     opts.Log,
		pool:    newPool(),
	}
	s.lower, s.upper = p.Bounds()
	if s.relaxer == nil {
		s.relaxer = SimplexRelaxer{}
	}
	if s.intTol <= 0 {
		s.intTol = DefaultIntTol
	}
	if s.log == nil {
		s.log = log.StandardLogger()
	}
	s.rootBound = math.Inf(-1)
	return s
}

func (s *search) work(ctx context.Context) error {
	for {
		n, ok := s.pool.pop()
		if !ok {
			return nil
		}
		err := s.process(ctx, n)
		s.pool.done()
		if err != nil {
			return err
		}
	}
}

func (s *search) process(ctx context.Context, n *node) error {
	if ctx.Err() != nil {
		s.incomplete.Store(true)
		return nil
	}
	if s.limit > 0 && s.nodes.Load() >= s.limit {
		s.incomplete.Store(true)
		s.pool.stop()
		return nil
	}
	if s.inc.dominates(n.bound) {
		return nil
	}

	lower, upper := s.nodeBounds(n)
	rel, err := s.relaxer.Relax(ctx, s.p, lower, upper)
	count := s.nodes.Add(1)
	s.iters.Add(int64(rel.Iterations))
	switch {
	case err == nil:
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.incomplete.Store(true)
		return nil
	case errors.Is(err, ErrIterationLimit):
		s.log.WithField("depth", n.depth).Warn("node relaxation hit the iteration limit; node dropped")
		s.incomplete.Store(true)
		return nil
	default:
		return fmt.Errorf("milp: relaxation at depth %d: %w", n.depth, err)
	}

	if n.depth == 0 && rel.Status == LPOptimal {
		s.rootBound = rel.Objective
	}
	switch rel.Status {
	case LPInfeasible:
		return nil
	case LPUnbounded:
		return ErrUnbounded
	}
	if s.inc.dominates(rel.Objective) {
		return nil
	}

	v := s.branchVar(rel.Values)
	if v < 0 {
		x := s.roundIntegers(rel.Values)
		obj := s.p.Objective(x)
		if s.inc.tryImprove(x, obj) {
			s.log.WithFields(log.Fields{"objective": obj, "nodes": count}).Debug("new incumbent")
			if s.onInc != nil {
				s.inc.notify(s.onInc, Incumbent{Objective: obj, Nodes: int(count), Elapsed: time.Since(s.start)})
			}
		}
		return nil
	}

	val := rel.Values[v]
	down := n.child(bound{v: v, lower: lower[v], upper: math.Floor(val)}, rel.Objective, false)
	up := n.child(bound{v: v, lower: math.Ceil(val), upper: upper[v]}, rel.Objective, true)
	s.pool.push(down)
	s.pool.push(up)
	return nil
}

func (s *search) nodeBounds(n *node) (lower, upper []float64) {
	lower = append([]float64(nil), s.lower...)
	upper = append([]float64(nil), s.upper...)
	for _, b := range n.bounds {
		lower[b.v], upper[b.v] = b.lower, b.upper
	}
	return lower, upper
}

// branchVar returns the integer variable whose fractional part is closest
// to one half, lowest index first, or -1 when x is integral.
func (s *search) branchVar(x []float64) int {
	best, bestScore := -1, math.Inf(1)
	for i, v := range s.p.Vars {
		if !v.Integer {
			continue
		}
		f := x[i] - math.Floor(x[i])
		if f <= s.intTol || f >= 1-s.intTol {
			continue
		}
		if score := math.Abs(f - 0.5); score < bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func (s *search) roundIntegers(x []float64) []float64 {
	out := append([]float64(nil), x...)
	for i, v := range s.p.Vars {
		if v.Integer {
			out[i] = math.Round(out[i])
		}
	}
	return out
}

type bound struct {
	v            int
	lower, upper float64
}

type node struct {
	bounds []bound
	depth  int
	// bound is the parent's relaxation objective, a valid lower bound.
	bound float64
	up    bool
	seq   int
}

func (n *node) child(b bound, parentObj float64, up bool) *node {
	bs := make([]bound, len(n.bounds), len(n.bounds)+1)
	copy(bs, n.bounds)
	return &node{bounds: append(bs, b), depth: n.depth + 1, bound: parentObj, up: up}
}

// nodeHeap orders open nodes depth first, then by best bound, then up
// branches before down branches, then by creation.
type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	if a.bound != b.bound {
		return a.bound < b.bound
	}
	if a.up != b.up {
		return a.up
	}
	return a.seq < b.seq
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) { *h = append(*h, x.(*node)) }

func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}

// pool hands out open nodes to workers. pop blocks while the heap is
// empty but another worker may still produce children.
type pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	h       nodeHeap
	active  int
	seq     int
	stopped bool
}

func newPool() *pool {
	p := &pool{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pool) push(n *node) {
	p.mu.Lock()
	n.seq = p.seq
	p.seq++
	heap.Push(&p.h, n)
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *pool) pop() (*node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.h) == 0 && p.active > 0 && !p.stopped {
		p.cond.Wait()
	}
	if p.stopped || len(p.h) == 0 {
		return nil, false
	}
	p.active++
	return heap.Pop(&p.h).(*node), true
}

func (p *pool) done() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *pool) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *pool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.h)
}

type incumbent struct {
	mu     sync.Mutex
	values []float64
	obj    float64
	ok     bool

	notifyMu sync.Mutex
}

// tryImprove installs x when it is strictly better than the current
// incumbent.
func (in *incumbent) tryImprove(x []float64, obj float64) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ok && obj >= in.obj-pruneTol {
		return false
	}
	in.values = append([]float64(nil), x...)
	in.obj = obj
	in.ok = true
	return true
}

// dominates reports whether a node with the given lower bound cannot beat
// the incumbent.
func (in *incumbent) dominates(bound float64) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ok && bound >= in.obj-pruneTol
}

func (in *incumbent) get() ([]float64, float64, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.values, in.obj, in.ok
}

func (in *incumbent) notify(fn func(Incumbent), ev Incumbent) {
	in.notifyMu.Lock()
	defer in.notifyMu.Unlock()
	fn(ev)
}
