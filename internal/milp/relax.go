package milp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LPStatus is the outcome of solving an LP relaxation.
type LPStatus int

const (
	LPOptimal LPStatus = iota
	LPInfeasible
	LPUnbounded
)

func (s LPStatus) String() string {
	switch s {
	case LPOptimal:
		return "optimal"
	case LPInfeasible:
		return "infeasible"
	case LPUnbounded:
		return "unbounded"
	}
	return fmt.Sprintf("LPStatus(%d)", int(s))
}

// Relaxation is the answer of a Relaxer. Values and Objective are only
// meaningful when Status is LPOptimal.
type Relaxation struct {
	Status     LPStatus
	Values     []float64
	Objective  float64
	Iterations int
}

// Relaxer solves the continuous relaxation of p under the given variable
// bounds, which override the bounds stored in p. Integrality is ignored.
type Relaxer interface {
	Relax(ctx context.Context, p *Problem, lower, upper []float64) (Relaxation, error)
}

var (
	ErrIterationLimit = errors.New("milp: simplex iteration limit reached")
	ErrUnbounded      = errors.New("milp: relaxation is unbounded")
)

// standardForm is p rewritten as "min c'y s.t. A y = b, y >= 0, b >= 0".
// Structural columns are the original variables shifted by their lower
// bound; fixed variables are substituted out; finite upper bounds become
// rows; inequalities get slack columns.
type standardForm struct {
	c       []float64
	a       *mat.Dense
	b       []float64
	rows    int
	cols    int
	nStruct int

	// varCol maps a problem variable to its structural column, -1 when fixed.
	varCol []int
	shift  []float64
	// basic holds, per row, a slack column with coefficient +1 usable as
	// the starting basis, or -1 when the row needs an artificial.
	basic []int
}

type sfRow struct {
	coef  []float64
	sense Sense
	rhs   float64
}

// newStandardForm returns ok=false when the bounds or a constant row are
// already contradictory.
func newStandardForm(p *Problem, lower, upper []float64, tol float64) (*standardForm, bool) {
	nv := len(p.Vars)
	sf := &standardForm{varCol: make([]int, nv), shift: make([]float64, nv)}
	var colUpper []float64
	for i := 0; i < nv; i++ {
		l, u := lower[i], upper[i]
		if u < l-tol {
			return nil, false
		}
		sf.shift[i] = l
		if u-l <= tol {
			sf.varCol[i] = -1
			continue
		}
		sf.varCol[i] = sf.nStruct
		sf.c = append(sf.c, p.Vars[i].Cost)
		colUpper = append(colUpper, u-l)
		sf.nStruct++
	}

	var rows []sfRow
	for _, c := range p.Constraints {
		coef := make([]float64, sf.nStruct)
		rhs := c.RHS
		nonzero := false
		for _, t := range c.Terms {
			rhs -= t.Coef * sf.shift[t.Var]
			if col := sf.varCol[t.Var]; col >= 0 {
				coef[col] += t.Coef
			}
		}
		for _, v := range coef {
			if math.Abs(v) > tol {
				nonzero = true
				break
			}
		}
		if !nonzero {
			if !constantRowHolds(c.Sense, rhs, feasibilityTol) {
				return nil, false
			}
			continue
		}
		rows = append(rows, sfRow{coef: coef, sense: c.Sense, rhs: rhs})
	}
	for col, u := range colUpper {
		if math.IsInf(u, 1) {
			continue
		}
		coef := make([]float64, sf.nStruct)
		coef[col] = 1
		rows = append(rows, sfRow{coef: coef, sense: LessEqual, rhs: u})
	}

	nSlack := 0
	for _, r := range rows {
		if r.sense != Equal {
			nSlack++
		}
	}
	sf.rows = len(rows)
	sf.cols = sf.nStruct + nSlack
	sf.c = append(sf.c, make([]float64, nSlack)...)
	sf.b = make([]float64, sf.rows)
	sf.basic = make([]int, sf.rows)
	if sf.rows == 0 {
		return sf, true
	}
	sf.a = mat.NewDense(sf.rows, sf.cols, nil)
	slack := sf.nStruct
	for i, r := range rows {
		dst := sf.a.RawRowView(i)
		copy(dst, r.coef)
		sf.basic[i] = -1
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		for j := 0; j < sf.nStruct; j++ {
			dst[j] *= sign
		}
		sf.b[i] = sign * r.rhs
		switch r.sense {
		case LessEqual:
			dst[slack] = sign
		case GreaterEqual:
			dst[slack] = -sign
		}
		if r.sense != Equal {
			if dst[slack] > 0 {
				sf.basic[i] = slack
			}
			slack++
		}
	}
	return sf, true
}

func constantRowHolds(s Sense, rhs, tol float64) bool {
	switch s {
	case LessEqual:
		return rhs >= -tol
	case GreaterEqual:
		return rhs <= tol
	default:
		return math.Abs(rhs) <= tol
	}
}

// recover maps a standard-form point back to problem variables.
func (sf *standardForm) recover(y []float64) []float64 {
	x := make([]float64, len(sf.varCol))
	for i, col := range sf.varCol {
		x[i] = sf.shift[i]
		if col >= 0 {
			x[i] += y[col]
		}
	}
	return x
}
