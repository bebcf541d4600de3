package milp

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	defaultTolerance = 1e-9
	feasibilityTol   = 1e-7
	// after this many consecutive degenerate pivots pricing switches to
	// Bland's rule for the rest of the solve
	degenerateStreak = 30
)

// SimplexRelaxer is a dense two-phase primal simplex. It is the default
// Relaxer used by Solve.
type SimplexRelaxer struct {
	// MaxIterations bounds the pivots of a single solve; 0 picks a limit
	// proportional to the tableau size.
	MaxIterations int
	// Tolerance is the pivot/reduced-cost tolerance; 0 means 1e-9.
	Tolerance float64
}

func (s SimplexRelaxer) tol() float64 {
	if s.Tolerance > 0 {
		return s.Tolerance
	}
	return defaultTolerance
}

// Relax implements Relaxer.
func (s SimplexRelaxer) Relax(ctx context.Context, p *Problem, lower, upper []float64) (Relaxation, error) {
	tol := s.tol()
	sf, ok := newStandardForm(p, lower, upper, tol)
	if !ok {
		return Relaxation{Status: LPInfeasible}, nil
	}
	if sf.rows == 0 {
		// every column is unconstrained above
		for _, c := range sf.c {
			if c < -tol {
				return Relaxation{Status: LPUnbounded}, nil
			}
		}
		x := sf.recover(make([]float64, sf.cols))
		return Relaxation{Status: LPOptimal, Values: x, Objective: p.Objective(x)}, nil
	}

	t := newTableau(sf, tol)
	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 50*(t.m+t.n) + 1000
	}
	t.maxIter = maxIter

	if t.nArt > 0 {
		t.phaseOneObjective()
		st, err := t.iterate(ctx, t.n)
		if err != nil {
			return Relaxation{Iterations: t.iters}, err
		}
		if st == LPUnbounded {
			// phase one is bounded below by zero; this is numerical trouble
			return Relaxation{Iterations: t.iters}, ErrIterationLimit
		}
		if -t.obj()[t.n] > feasibilityTol {
			return Relaxation{Status: LPInfeasible, Iterations: t.iters}, nil
		}
		t.evictArtificials()
	}

	t.phaseTwoObjective(sf.c)
	st, err := t.iterate(ctx, t.nReal)
	if err != nil {
		return Relaxation{Iterations: t.iters}, err
	}
	if st == LPUnbounded {
		return Relaxation{Status: LPUnbounded, Iterations: t.iters}, nil
	}

	y := make([]float64, sf.cols)
	for i, col := range t.basis {
		if col < sf.cols {
			y[col] = math.Max(0, t.rhs(i))
		}
	}
	x := sf.recover(y)
	return Relaxation{Status: LPOptimal, Values: x, Objective: p.Objective(x), Iterations: t.iters}, nil
}

// tableau stores the constraint rows followed by the objective row; the
// last column is the right-hand side. The objective row holds reduced
// costs and, in the rhs column, the negated objective value.
type tableau struct {
	d     *mat.Dense
	m     int // constraint rows
	n     int // columns excluding rhs
	nReal int // columns below nReal are structural or slack
	nArt  int
	basis []int

	tol     float64
	iters   int
	maxIter int
	bland   bool
	streak  int
}

func newTableau(sf *standardForm, tol float64) *tableau {
	nArt := 0
	for _, b := range sf.basic {
		if b < 0 {
			nArt++
		}
	}
	t := &tableau{
		m:     sf.rows,
		n:     sf.cols + nArt,
		nReal: sf.cols,
		nArt:  nArt,
		basis: make([]int, sf.rows),
		tol:   tol,
	}
	t.d = mat.NewDense(t.m+1, t.n+1, nil)
	art := sf.cols
	for i := 0; i < t.m; i++ {
		row := t.d.RawRowView(i)
		copy(row, sf.a.RawRowView(i))
		row[t.n] = sf.b[i]
		if sf.basic[i] >= 0 {
			t.basis[i] = sf.basic[i]
			continue
		}
		row[art] = 1
		t.basis[i] = art
		art++
	}
	return t
}

func (t *tableau) obj() []float64 { return t.d.RawRowView(t.m) }

func (t *tableau) rhs(i int) float64 { return t.d.At(i, t.n) }

func (t *tableau) isArtificial(col int) bool { return col >= t.nReal }

// phaseOneObjective prices out the artificial basis for "min sum(art)".
func (t *tableau) phaseOneObjective() {
	z := t.obj()
	for j := range z {
		z[j] = 0
	}
	for j := t.nReal; j < t.n; j++ {
		z[j] = 1
	}
	for i, col := range t.basis {
		if !t.isArtificial(col) {
			continue
		}
		row := t.d.RawRowView(i)
		for j := range z {
			z[j] -= row[j]
		}
	}
}

// phaseTwoObjective installs the real costs and prices out the basis.
func (t *tableau) phaseTwoObjective(c []float64) {
	z := t.obj()
	for j := range z {
		z[j] = 0
	}
	copy(z, c)
	for i, col := range t.basis {
		if col >= len(c) || c[col] == 0 {
			continue
		}
		cb := c[col]
		row := t.d.RawRowView(i)
		for j := range z {
			z[j] -= cb * row[j]
		}
	}
	t.bland = false
	t.streak = 0
}

// evictArtificials pivots artificial columns that are still basic (at
// level zero) out of the basis. Rows where no real column has a usable
// entry are redundant and keep their artificial, which then never moves.
func (t *tableau) evictArtificials() {
	for i, col := range t.basis {
		if !t.isArtificial(col) {
			continue
		}
		row := t.d.RawRowView(i)
		best, bestAbs := -1, feasibilityTol
		for j := 0; j < t.nReal; j++ {
			if a := math.Abs(row[j]); a > bestAbs {
				best, bestAbs = j, a
			}
		}
		if best >= 0 {
			t.pivot(i, best)
		}
	}
}

// iterate runs primal simplex pivots; only columns below limit may enter.
func (t *tableau) iterate(ctx context.Context, limit int) (LPStatus, error) {
	for {
		if t.iters&31 == 0 {
			if err := ctx.Err(); err != nil {
				return LPOptimal, err
			}
		}
		e := t.entering(limit)
		if e < 0 {
			return LPOptimal, nil
		}
		r := t.leaving(e)
		if r < 0 {
			return LPUnbounded, nil
		}
		if t.iters >= t.maxIter {
			return LPOptimal, ErrIterationLimit
		}
		if t.rhs(r) <= t.tol {
			t.streak++
			if t.streak >= degenerateStreak {
				t.bland = true
			}
		} else {
			t.streak = 0
		}
		t.pivot(r, e)
		t.iters++
	}
}

// entering picks the column to enter: most negative reduced cost, or the
// lowest-index improving column under Bland's rule.
func (t *tableau) entering(limit int) int {
	z := t.obj()
	best, bestVal := -1, -t.tol
	for j := 0; j < limit; j++ {
		if z[j] < bestVal {
			if t.bland {
				return j
			}
			best, bestVal = j, z[j]
		}
	}
	return best
}

// leaving runs the ratio test on column e; ties go to the row whose basic
// column has the lowest index.
func (t *tableau) leaving(e int) int {
	best := -1
	var bestRatio float64
	for i := 0; i < t.m; i++ {
		a := t.d.At(i, e)
		if a <= t.tol {
			continue
		}
		ratio := math.Max(0, t.rhs(i)) / a
		switch {
		case best < 0, ratio < bestRatio-t.tol:
			best, bestRatio = i, ratio
		case ratio <= bestRatio+t.tol && t.basis[i] < t.basis[best]:
			best, bestRatio = i, math.Min(ratio, bestRatio)
		}
	}
	return best
}

func (t *tableau) pivot(r, e int) {
	pr := t.d.RawRowView(r)
	inv := 1 / pr[e]
	for k := range pr {
		pr[k] *= inv
	}
	pr[e] = 1
	for i := 0; i <= t.m; i++ {
		if i == r {
			continue
		}
		row := t.d.RawRowView(i)
		f := row[e]
		if f == 0 {
			continue
		}
		for k, v := range pr {
			if v == 0 {
				continue
			}
			row[k] -= f * v
			if math.Abs(row[k]) < 1e-12 {
				row[k] = 0
			}
		}
		row[e] = 0
		if i < t.m && row[t.n] < 0 && row[t.n] > -feasibilityTol {
			row[t.n] = 0
		}
	}
	t.basis[r] = e
}
