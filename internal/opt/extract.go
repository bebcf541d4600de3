package opt

import "fmt"

// ExtractRoutes walks each worker's selected arcs from the depot and
// returns one closed route per worker. Arc values are read as selected
// above one half. Any arc structure other than a single depot cycle per
// worker covering every location exactly once yields
// ErrInconsistentSolution.
func ExtractRoutes(f *Formulation, values []float64) ([][]int, error) {
	if len(values) != f.Problem.NumVars() {
		return nil, fmt.Errorf("%w: got %d values for %d variables", ErrInconsistentSolution, len(values), f.Problem.NumVars())
	}
	n, m := f.n, f.m
	selected := func(k, i, j int) bool { return values[f.Arc(k, i, j)] > 0.5 }

	routes := make([][]int, m)
	seenBy := make([]int, n)
	for j := range seenBy {
		seenBy[j] = -1
	}
	for k := 0; k < m; k++ {
		arcs := 0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if selected(k, i, j) {
					arcs++
				}
			}
		}

		route := []int{0}
		visited := make([]bool, n)
		cur := 0
		for {
			next := -1
			for j := 0; j < n; j++ {
				if !selected(k, cur, j) {
					continue
				}
				if next >= 0 {
					return nil, fmt.Errorf("%w: worker %d leaves location %d more than once", ErrInconsistentSolution, k, cur)
				}
				next = j
			}
			if next < 0 {
				return nil, fmt.Errorf("%w: worker %d has no arc out of location %d", ErrInconsistentSolution, k, cur)
			}
			route = append(route, next)
			if next == 0 {
				break
			}
			if visited[next] {
				return nil, fmt.Errorf("%w: worker %d revisits location %d", ErrInconsistentSolution, k, next)
			}
			visited[next] = true
			cur = next
		}
		if arcs != len(route)-1 {
			return nil, fmt.Errorf("%w: worker %d selects %d arcs but its depot tour uses %d", ErrInconsistentSolution, k, arcs, len(route)-1)
		}

		for _, j := range route[1 : len(route)-1] {
			if seenBy[j] >= 0 {
				return nil, fmt.Errorf("%w: location %d visited by workers %d and %d", ErrInconsistentSolution, j, seenBy[j], k)
			}
			seenBy[j] = k
		}
		routes[k] = route
	}
	for j := 1; j < n; j++ {
		if seenBy[j] < 0 {
			return nil, fmt.Errorf("%w: location %d is not visited", ErrInconsistentSolution, j)
		}
	}
	return routes, nil
}

// Aggregate pairs routes with worker names and measures them on d.
func Aggregate(d [][]float64, workers []string, routes [][]int) ([]WorkerRoute, float64) {
	out := make([]WorkerRoute, len(routes))
	total := 0.0
	for k, r := range routes {
		dist := routeDistance(d, r)
		out[k] = WorkerRoute{Worker: workers[k], Route: r, Distance: dist}
		total += dist
	}
	return out, total
}
