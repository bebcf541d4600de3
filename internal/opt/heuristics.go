package opt

// Warm-start heuristics. Preferences pin every location to one worker, so
// a feasible routing only has to order each worker's own locations.

// WarmStart returns a point of f.Problem built from one nearest-neighbour
// tour per worker, improved by 2-opt. Callers should still check it with
// Problem.Feasible before trusting it.
func WarmStart(f *Formulation, req Request) []float64 {
	x := make([]float64, f.Problem.NumVars())
	for k, tour := range seedTours(req) {
		if len(tour) == 2 {
			x[f.Arc(k, 0, 0)] = 1
			continue
		}
		for t := 0; t+1 < len(tour); t++ {
			x[f.Arc(k, tour[t], tour[t+1])] = 1
		}
		for pos := 1; pos+1 < len(tour); pos++ {
			x[f.Order(k, tour[pos])] = float64(pos)
		}
	}
	return x
}

// seedTours returns one closed depot tour per worker.
func seedTours(req Request) [][]int {
	m := len(req.Workers)
	assigned := make([][]int, m)
	for j := 1; j < req.NumLocations(); j++ {
		k := req.Preferences[j]
		assigned[k] = append(assigned[k], j)
	}
	tours := make([][]int, m)
	for k := range tours {
		tours[k] = improveTour2Opt(req.Distances, nearestNeighbourTour(req.Distances, assigned[k]), 3)
	}
	return tours
}

// nearestNeighbourTour always moves to the closest unvisited stop, lowest
// index on ties, and returns to the depot.
func nearestNeighbourTour(d [][]float64, stops []int) []int {
	tour := make([]int, 0, len(stops)+2)
	tour = append(tour, 0)
	left := append([]int(nil), stops...)
	cur := 0
	for len(left) > 0 {
		best := 0
		for i := 1; i < len(left); i++ {
			if d[cur][left[i]] < d[cur][left[best]] {
				best = i
			}
		}
		cur = left[best]
		tour = append(tour, cur)
		left = append(left[:best], left[best+1:]...)
	}
	return append(tour, 0)
}

// improveTour2Opt reverses inner segments while that shortens the tour.
// Costs may be directed, so every candidate is re-measured in full.
func improveTour2Opt(d [][]float64, tour []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), tour...)
	bestDist := routeDistance(d, best)
	n := len(best)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				cand := twoOptSwap(best, i, k)
				if dist := routeDistance(d, cand); dist+1e-9 < bestDist {
					best, bestDist = cand, dist
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

// routeDistance sums d over consecutive stops of route.
func routeDistance(d [][]float64, route []int) float64 {
	total := 0.0
	for t := 0; t+1 < len(route); t++ {
		// an idle route is [0 0]; self-loops cost nothing
		if route[t] == route[t+1] {
			continue
		}
		total += d[route[t]][route[t+1]]
	}
	return total
}
