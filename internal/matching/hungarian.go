package matching

import "math"

// hungarianAssign solves the square-padded assignment problem with
// cost = 1 - score (§4.4's optional path), using the classic O(n^3)
// Kuhn-Munkres algorithm. No example in the reference pack ships an
// assignment-problem solver, so this is a direct, unexported implementation
// of the textbook algorithm rather than a borrowed one.
func hungarianAssign(pool []JobBids, scored []scoredBid) map[string]scoredBid {
	jobIndex := map[string]int{}
	for i, jb := range pool {
		jobIndex[jb.Job.ID] = i
	}

	driverIDs := make([]string, 0)
	driverIndex := map[string]int{}
	for _, b := range scored {
		if _, ok := driverIndex[b.driverID]; !ok {
			driverIndex[b.driverID] = len(driverIDs)
			driverIDs = append(driverIDs, b.driverID)
		}
	}

	n := len(pool)
	if len(driverIDs) > n {
		n = len(driverIDs)
	}
	if n == 0 {
		return map[string]scoredBid{}
	}

	// best[job][driver] holds the winning bid for that pair, if bid at all.
	best := make([][]*scoredBid, n)
	for i := range best {
		best[i] = make([]*scoredBid, n)
	}
	for i, b := range scored {
		ji, jok := jobIndex[b.jobID]
		di, dok := driverIndex[b.driverID]
		if !jok || !dok {
			continue
		}
		if cur := best[ji][di]; cur == nil || b.score > cur.score {
			bCopy := scored[i]
			best[ji][di] = &bCopy
		}
	}

	// noBidCost must exceed every real pairing's cost (max 1.0, at score=0) so
	// the solver never prefers a phantom no-bid pairing over an actual bid.
	const noBidCost = 2.0
	cost := make([][]float64, n)
	for i := range cost {
		cost[i] = make([]float64, n)
		for j := range cost[i] {
			if b := best[i][j]; b != nil {
				cost[i][j] = 1 - b.score
			} else {
				cost[i][j] = noBidCost
			}
		}
	}

	rowMatch := munkres(cost)

	assigned := map[string]scoredBid{}
	for i := 0; i < n; i++ {
		j := rowMatch[i]
		if j < 0 || i >= len(pool) || j >= len(driverIDs) {
			continue
		}
		if b := best[i][j]; b != nil {
			assigned[b.jobID] = *b
		}
	}
	return assigned
}

// munkres returns, for each row, the assigned column minimizing total cost
// over the square matrix cost (Kuhn-Munkres / Hungarian algorithm, O(n^3)).
func munkres(cost [][]float64) []int {
	n := len(cost)
	const inf = math.MaxFloat64 / 2

	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[j] = row matched to column j (1-indexed), 0 = unmatched
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = inf
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	rowMatch := make([]int, n)
	for i := range rowMatch {
		rowMatch[i] = -1
	}
	for j := 1; j <= n; j++ {
		if p[j] != 0 {
			rowMatch[p[j]-1] = j - 1
		}
	}
	return rowMatch
}
