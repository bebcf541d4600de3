package milp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// GonumRelaxer solves relaxations with gonum's lp.Simplex. lp.Simplex
// needs a constraint matrix of full row rank, so dependent rows are
// removed first. It ignores ctx once the solve has started.
type GonumRelaxer struct {
	Tolerance float64
}

// Relax implements Relaxer.
func (g GonumRelaxer) Relax(ctx context.Context, p *Problem, lower, upper []float64) (Relaxation, error) {
	if err := ctx.Err(); err != nil {
		return Relaxation{}, err
	}
	tol := g.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}
	sf, ok := newStandardForm(p, lower, upper, tol)
	if !ok {
		return Relaxation{Status: LPInfeasible}, nil
	}

	// lp.Simplex rejects all-zero columns; they sit at zero unless their
	// cost makes the problem unbounded.
	var keep []int
	for j := 0; j < sf.cols; j++ {
		zero := true
		for i := 0; i < sf.rows; i++ {
			if sf.a.At(i, j) != 0 {
				zero = false
				break
			}
		}
		if !zero {
			keep = append(keep, j)
			continue
		}
		if sf.c[j] < -tol {
			return Relaxation{Status: LPUnbounded}, nil
		}
	}
	y := make([]float64, sf.cols)
	if sf.rows == 0 {
		x := sf.recover(y)
		return Relaxation{Status: LPOptimal, Values: x, Objective: p.Objective(x)}, nil
	}
	rows, consistent := independentRows(sf.a, sf.b, tol)
	if !consistent {
		return Relaxation{Status: LPInfeasible}, nil
	}
	if len(rows) > len(keep) {
		return Relaxation{}, fmt.Errorf("milp: gonum relaxer: %d independent rows exceed %d columns", len(rows), len(keep))
	}

	c := make([]float64, len(keep))
	a := mat.NewDense(len(rows), len(keep), nil)
	b := make([]float64, len(rows))
	for r, i := range rows {
		b[r] = sf.b[i]
		for k, j := range keep {
			a.Set(r, k, sf.a.At(i, j))
		}
	}
	for k, j := range keep {
		c[k] = sf.c[j]
	}
	_, opt, err := lp.Simplex(c, a, b, tol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return Relaxation{Status: LPInfeasible}, nil
	case errors.Is(err, lp.ErrUnbounded):
		return Relaxation{Status: LPUnbounded}, nil
	case err != nil:
		return Relaxation{}, fmt.Errorf("milp: gonum simplex: %w", err)
	}
	for k, j := range keep {
		y[j] = opt[k]
	}
	x := sf.recover(y)
	return Relaxation{Status: LPOptimal, Values: x, Objective: p.Objective(x)}, nil
}

// independentRows returns a maximal set of linearly independent rows of
// [a|b] by incremental Gaussian elimination. consistent is false when a
// dependent row disagrees on its right-hand side.
func independentRows(a *mat.Dense, b []float64, tol float64) (rows []int, consistent bool) {
	m, n := a.Dims()
	var (
		basis  [][]float64
		pivots []int
	)
	for i := 0; i < m; i++ {
		r := make([]float64, n+1)
		copy(r, a.RawRowView(i))
		r[n] = b[i]
		for q, br := range basis {
			f := r[pivots[q]]
			if f == 0 {
				continue
			}
			for j := range r {
				r[j] -= f * br[j]
			}
		}
		p, best := -1, tol
		for j := 0; j < n; j++ {
			if v := math.Abs(r[j]); v > best {
				p, best = j, v
			}
		}
		if p < 0 {
			if math.Abs(r[n]) > feasibilityTol {
				return nil, false
			}
			continue
		}
		inv := 1 / r[p]
		for j := range r {
			r[j] *= inv
		}
		// keep earlier basis rows reduced against the new pivot
		for _, br := range basis {
			if f := br[p]; f != 0 {
				for j := range br {
					br[j] -= f * r[j]
				}
			}
		}
		basis = append(basis, r)
		pivots = append(pivots, p)
		rows = append(rows, i)
	}
	return rows, true
}
