// Package milp implements a small mixed-integer linear programming engine:
// a dense two-phase simplex for LP relaxations and a parallel
// branch-and-bound search on top of it.
package milp

import (
	"fmt"
	"math"
)

// Sense is the relation of a linear constraint to its right-hand side.
type Sense int

const (
	LessEqual Sense = iota
	Equal
	GreaterEqual
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case Equal:
		return "="
	case GreaterEqual:
		return ">="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

// Term is a single coefficient of a linear expression.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is sum(Terms) Sense RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Variable is a decision variable. Lower must be finite; Upper may be +Inf.
type Variable struct {
	Name    string
	Lower   float64
	Upper   float64
	Cost    float64
	Integer bool
}

// Problem is "minimize sum(Cost*x) subject to Constraints and variable
// bounds". It is treated as read-only once handed to a solver.
type Problem struct {
	Name        string
	Vars        []Variable
	Constraints []Constraint
}

// NewProblem returns an empty minimization problem.
func NewProblem(name string) *Problem {
	return &Problem{Name: name}
}

// AddVar appends a variable and returns its index.
func (p *Problem) AddVar(v Variable) int {
	p.Vars = append(p.Vars, v)
	return len(p.Vars) - 1
}

// AddConstraint appends a constraint and returns its index.
func (p *Problem) AddConstraint(c Constraint) int {
	p.Constraints = append(p.Constraints, c)
	return len(p.Constraints) - 1
}

// NumVars returns the number of variables.
func (p *Problem) NumVars() int { return len(p.Vars) }

// Bounds returns fresh copies of the lower and upper bound vectors.
func (p *Problem) Bounds() (lower, upper []float64) {
	lower = make([]float64, len(p.Vars))
	upper = make([]float64, len(p.Vars))
	for i, v := range p.Vars {
		lower[i] = v.Lower
		upper[i] = v.Upper
	}
	return lower, upper
}

// Objective evaluates the objective at x.
func (p *Problem) Objective(x []float64) float64 {
	var z float64
	for i, v := range p.Vars {
		z += v.Cost * x[i]
	}
	return z
}

// Check verifies the problem is well formed.
func (p *Problem) Check() error {
	for i, v := range p.Vars {
		if math.IsNaN(v.Lower) || math.IsInf(v.Lower, 0) {
			return fmt.Errorf("milp: variable %d (%s) has non-finite lower bound", i, v.Name)
		}
		if math.IsNaN(v.Upper) || math.IsNaN(v.Cost) || math.IsInf(v.Cost, 0) {
			return fmt.Errorf("milp: variable %d (%s) has invalid upper bound or cost", i, v.Name)
		}
	}
	for ci, c := range p.Constraints {
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("milp: constraint %d (%s) has non-finite rhs", ci, c.Name)
		}
		for _, t := range c.Terms {
			if t.Var < 0 || t.Var >= len(p.Vars) {
				return fmt.Errorf("milp: constraint %d (%s) references unknown variable %d", ci, c.Name, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("milp: constraint %d (%s) has non-finite coefficient", ci, c.Name)
			}
		}
	}
	return nil
}

// Feasible reports whether x satisfies every bound, constraint and
// integrality requirement within tol. The error names the first violation.
func (p *Problem) Feasible(x []float64, tol float64) error {
	if len(x) != len(p.Vars) {
		return fmt.Errorf("milp: got %d values for %d variables", len(x), len(p.Vars))
	}
	for i, v := range p.Vars {
		if x[i] < v.Lower-tol || x[i] > v.Upper+tol {
			return fmt.Errorf("milp: %s=%g outside [%g,%g]", v.Name, x[i], v.Lower, v.Upper)
		}
		if v.Integer && math.Abs(x[i]-math.Round(x[i])) > tol {
			return fmt.Errorf("milp: %s=%g is not integral", v.Name, x[i])
		}
	}
	for _, c := range p.Constraints {
		var lhs float64
		for _, t := range c.Terms {
			lhs += t.Coef * x[t.Var]
		}
		ok := true
		switch c.Sense {
		case LessEqual:
			ok = lhs <= c.RHS+tol
		case GreaterEqual:
			ok = lhs >= c.RHS-tol
		case Equal:
			ok = math.Abs(lhs-c.RHS) <= tol
		}
		if !ok {
			return fmt.Errorf("milp: constraint %s violated: %g %s %g", c.Name, lhs, c.Sense, c.RHS)
		}
	}
	return nil
}
