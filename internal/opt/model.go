package opt

import (
	"fmt"

	"visitplan/internal/milp"
)

// BuildOptions tunes model construction.
type BuildOptions struct {
	// Presolve fixes to zero every arc the coverage and preference rows
	// already rule out, and drops the ordering rows those arcs appear in.
	// The set of feasible routings is unchanged.
	Presolve bool
}

// DefaultBuildOptions enables presolve.
func DefaultBuildOptions() BuildOptions { return BuildOptions{Presolve: true} }

// Formulation is the routing MILP together with the variable layout
// needed to read a solution back.
//
// Arc variables x[k][i][j] come first, created in (k,i,j) order, then the
// ordering variables u[k][i] for i >= 1.
type Formulation struct {
	Problem *milp.Problem

	n, m int
	x    [][][]int
	u    [][]int
}

// Arc returns the variable index of x[k][i][j].
func (f *Formulation) Arc(k, i, j int) int { return f.x[k][i][j] }

// Order returns the variable index of u[k][i], or -1 for the depot.
func (f *Formulation) Order(k, i int) int { return f.u[k][i] }

// Locations returns n, the depot included.
func (f *Formulation) Locations() int { return f.n }

// Workers returns m.
func (f *Formulation) Workers() int { return f.m }

// BuildModel formulates req as a multi-vehicle routing MILP with
// Miller-Tucker-Zemlin subtour elimination. req must have passed Validate.
//
// The depot self-loop x[k][0][0] is the idle indicator: a worker with no
// visits takes it and its route is [0 0]. All other self-loops are
// forbidden. The preference rows are hard: the preferred worker must
// visit the location.
func BuildModel(req Request, opts BuildOptions) *Formulation {
	n, m := req.NumLocations(), len(req.Workers)
	d := req.Distances
	p := milp.NewProblem("visitplan")
	f := &Formulation{Problem: p, n: n, m: m}

	ruledOut := func(k, i, j int) bool {
		if !opts.Presolve {
			return false
		}
		return (j > 0 && req.Preferences[j] != k) || (i > 0 && req.Preferences[i] != k)
	}

	f.x = make([][][]int, m)
	for k := 0; k < m; k++ {
		f.x[k] = make([][]int, n)
		for i := 0; i < n; i++ {
			f.x[k][i] = make([]int, n)
			for j := 0; j < n; j++ {
				v := milp.Variable{
					Name:    fmt.Sprintf("x_%d_%d_%d", k, i, j),
					Upper:   1,
					Integer: true,
				}
				switch {
				case i == j && i != 0:
					v.Upper = 0
				case i != j:
					v.Cost = d[i][j]
					if ruledOut(k, i, j) {
						v.Upper = 0
					}
				}
				f.x[k][i][j] = p.AddVar(v)
			}
		}
	}

	top := float64(n - 1)
	f.u = make([][]int, m)
	for k := 0; k < m; k++ {
		f.u[k] = make([]int, n)
		f.u[k][0] = -1
		for i := 1; i < n; i++ {
			v := milp.Variable{Name: fmt.Sprintf("u_%d_%d", k, i), Upper: top}
			if opts.Presolve && req.Preferences[i] != k {
				v.Upper = 0
			}
			f.u[k][i] = p.AddVar(v)
		}
	}

	// every patient is entered exactly once
	for j := 1; j < n; j++ {
		var ts []milp.Term
		for k := 0; k < m; k++ {
			for i := 0; i < n; i++ {
				if i != j {
					ts = append(ts, milp.Term{Var: f.x[k][i][j], Coef: 1})
				}
			}
		}
		p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("cover_%d", j), Terms: ts, Sense: milp.Equal, RHS: 1})
	}

	// one departure from and one return to the depot per worker, the idle
	// self-loop counting as both
	for k := 0; k < m; k++ {
		out := make([]milp.Term, 0, n)
		in := make([]milp.Term, 0, n)
		for j := 0; j < n; j++ {
			out = append(out, milp.Term{Var: f.x[k][0][j], Coef: 1})
			in = append(in, milp.Term{Var: f.x[k][j][0], Coef: 1})
		}
		p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("depart_%d", k), Terms: out, Sense: milp.Equal, RHS: 1})
		p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("return_%d", k), Terms: in, Sense: milp.Equal, RHS: 1})
	}

	for k := 0; k < m; k++ {
		for i := 0; i < n; i++ {
			ts := make([]milp.Term, 0, 2*(n-1))
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				ts = append(ts, milp.Term{Var: f.x[k][i][j], Coef: 1}, milp.Term{Var: f.x[k][j][i], Coef: -1})
			}
			p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("flow_%d_%d", k, i), Terms: ts, Sense: milp.Equal})
		}
	}

	nf := float64(n)
	for k := 0; k < m; k++ {
		for i := 1; i < n; i++ {
			for j := 1; j < n; j++ {
				if i == j || ruledOut(k, i, j) {
					continue
				}
				p.AddConstraint(milp.Constraint{
					Name: fmt.Sprintf("mtz_%d_%d_%d", k, i, j),
					Terms: []milp.Term{
						{Var: f.u[k][i], Coef: 1},
						{Var: f.u[k][j], Coef: -1},
						{Var: f.x[k][i][j], Coef: nf},
					},
					Sense: milp.LessEqual,
					RHS:   nf - 1,
				})
			}
		}
	}

	for j := 1; j < n; j++ {
		k := req.Preferences[j]
		ts := make([]milp.Term, 0, n-1)
		for i := 0; i < n; i++ {
			if i != j {
				ts = append(ts, milp.Term{Var: f.x[k][i][j], Coef: 1})
			}
		}
		p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("prefer_%d", j), Terms: ts, Sense: milp.GreaterEqual, RHS: 1})
	}
	return f
}
