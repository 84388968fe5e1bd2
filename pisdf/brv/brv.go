// Package brv computes the Basic Repetition Vector of a PiSDF graph: the
// minimum positive integer firing count per actor that satisfies edge-rate
// balance, per connected component.
package brv

import (
	"errors"
	"fmt"
	"math"

	"github.com/preesm/spider2-sub002/core/numeric"
	"github.com/preesm/spider2-sub002/pisdf"
)

// ErrNullTopologyPivot is returned when the pivot method finds only a zero
// candidate for a diagonal entry of a non-trivial component, indicating
// ill-formed rates.
var ErrNullTopologyPivot = errors.New("brv: null topology pivot")

// Vector maps a vertex index to its firing count within the graph it was
// computed for.
type Vector map[int]int64

// Compute evaluates every edge rate against paramValues (indexed the same
// way as the graph's Params slice) and returns the repetition vector for
// every executable vertex of g.
func Compute(g *pisdf.Graph, paramValues []float64) (Vector, error) {
	components, err := connectedComponents(g, paramValues)
	if err != nil {
		return nil, err
	}

	rv := make(Vector)
	for _, comp := range components {
		compRV, err := computeComponent(g, comp, paramValues)
		if err != nil {
			return nil, err
		}
		for v, count := range compRV {
			rv[v] = count
		}
	}
	return rv, nil
}

// rateOf evaluates the rate of edge e on the side given by fromSource.
func rateOf(e *pisdf.Edge, fromSource bool, paramValues []float64) (int64, error) {
	compiled := e.SinkRate
	if fromSource {
		compiled = e.SourceRate
	}
	v, err := compiled.Eval(paramValues)
	if err != nil {
		return 0, fmt.Errorf("brv: %w", err)
	}
	return int64(math.Round(v)), nil
}

func isExecutable(g *pisdf.Graph, v *pisdf.Vertex, paramValues []float64) (bool, error) {
	if v.Subtype == pisdf.Input || v.Subtype == pisdf.Output || v.Subtype == pisdf.Config {
		return false, nil
	}
	for _, eix := range v.OutEdges {
		rate, err := rateOf(g.Edge(eix), true, paramValues)
		if err != nil {
			return false, err
		}
		if rate != 0 {
			return true, nil
		}
	}
	for _, eix := range v.InEdges {
		rate, err := rateOf(g.Edge(eix), false, paramValues)
		if err != nil {
			return false, err
		}
		if rate != 0 {
			return true, nil
		}
	}
	return false, nil
}

// connectedComponents partitions the executable, non-interface, non-config
// vertices of g into weakly connected components, ignoring self-loops.
func connectedComponents(g *pisdf.Graph, paramValues []float64) ([][]int, error) {
	executable := make(map[int]bool)
	for _, v := range g.Vertices {
		ok, err := isExecutable(g, v, paramValues)
		if err != nil {
			return nil, err
		}
		if ok {
			executable[v.Index] = true
		}
	}

	parent := make(map[int]int, len(executable))
	for v := range executable {
		parent[v] = v
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, e := range g.Edges {
		if e.SourceVertex == e.SinkVertex {
			continue
		}
		if !executable[e.SourceVertex] || !executable[e.SinkVertex] {
			continue
		}
		union(e.SourceVertex, e.SinkVertex)
	}

	groups := make(map[int][]int)
	for v := range executable {
		root := find(v)
		groups[root] = append(groups[root], v)
	}

	var components [][]int
	for _, members := range groups {
		components = append(components, members)
	}
	return components, nil
}

func computeComponent(g *pisdf.Graph, members []int, paramValues []float64) (Vector, error) {
	if len(members) == 1 {
		return Vector{members[0]: 1}, nil
	}

	colIx := make(map[int]int, len(members))
	for i, v := range members {
		colIx[v] = i
	}
	memberSet := make(map[int]bool, len(members))
	for _, v := range members {
		memberSet[v] = true
	}

	var rows [][]numeric.Rational
	for _, e := range g.Edges {
		if e.SourceVertex == e.SinkVertex {
			continue
		}
		if !memberSet[e.SourceVertex] || !memberSet[e.SinkVertex] {
			continue
		}
		srcRate, err := rateOf(e, true, paramValues)
		if err != nil {
			return nil, err
		}
		snkRate, err := rateOf(e, false, paramValues)
		if err != nil {
			return nil, err
		}
		row := make([]numeric.Rational, len(members))
		for c := range row {
			row[c] = numeric.FromInt(0)
		}
		row[colIx[e.SourceVertex]] = row[colIx[e.SourceVertex]].Add(numeric.FromInt(srcRate))
		row[colIx[e.SinkVertex]] = row[colIx[e.SinkVertex]].Sub(numeric.FromInt(snkRate))
		rows = append(rows, row)
	}

	if allZero(rows, len(members)) {
		rv := make(Vector, len(members))
		for _, v := range members {
			rv[v] = 1
		}
		return rv, nil
	}

	gamma, err := nullspace(rows, len(members))
	if err != nil {
		return nil, err
	}

	var l int64 = 1
	for _, r := range gamma {
		l = numeric.LCM(l, r.Den)
	}

	rv := make(Vector, len(members))
	for i, v := range members {
		scaled := gamma[i].Abs().Mul(numeric.FromInt(l))
		rv[v] = scaled.TruncInt64()
	}
	return rv, nil
}

func allZero(rows [][]numeric.Rational, cols int) bool {
	for _, row := range rows {
		for c := 0; c < cols; c++ {
			if !row[c].IsZero() {
				return false
			}
		}
	}
	return true
}

// nullspace implements the pivot method described for BRV computation:
// forward-eliminate the first n-1 columns using partial pivoting (largest
// absolute value in the current column; ties keep the current row), then
// back-substitute with the last column free and set to 1.
func nullspace(rows [][]numeric.Rational, n int) ([]numeric.Rational, error) {
	m := len(rows)
	t := make([][]numeric.Rational, m)
	for i := range rows {
		t[i] = append([]numeric.Rational(nil), rows[i]...)
	}

	pivotRow := 0
	for col := 0; col < n-1 && pivotRow < m; col++ {
		best := pivotRow
		bestAbs := t[pivotRow][col].Abs()
		for r := pivotRow + 1; r < m; r++ {
			v := t[r][col].Abs()
			if v.Cmp(bestAbs) > 0 {
				best, bestAbs = r, v
			}
		}
		if bestAbs.IsZero() {
			return nil, fmt.Errorf("brv: column %d: %w", col, ErrNullTopologyPivot)
		}
		t[pivotRow], t[best] = t[best], t[pivotRow]

		for r := pivotRow + 1; r < m; r++ {
			if t[r][col].IsZero() {
				continue
			}
			factor, err := t[r][col].Div(t[pivotRow][col])
			if err != nil {
				return nil, fmt.Errorf("brv: %w", err)
			}
			for c := col; c < n; c++ {
				t[r][c] = t[r][c].Sub(factor.Mul(t[pivotRow][c]))
			}
		}
		pivotRow++
	}

	gamma := make([]numeric.Rational, n)
	gamma[n-1] = numeric.FromInt(1)

	for i := pivotRow - 1; i >= 0; i-- {
		sum := numeric.FromInt(0)
		for j := i + 1; j < n; j++ {
			sum = sum.Add(t[i][j].Mul(gamma[j]))
		}
		if t[i][i].IsZero() {
			return nil, fmt.Errorf("brv: row %d: %w", i, ErrNullTopologyPivot)
		}
		val, err := sum.Neg().Div(t[i][i])
		if err != nil {
			return nil, fmt.Errorf("brv: %w", err)
		}
		gamma[i] = val
	}

	return gamma, nil
}

// AdjustForInterfaceRate scales rv uniformly so that the firing count of
// internalVertex times its local rate equals externalRate when that product
// falls short of externalRate; otherwise rv is returned unchanged.
func AdjustForInterfaceRate(rv Vector, internalVertex int, localRate, externalRate int64) (Vector, error) {
	if localRate == 0 {
		return rv, nil
	}
	current := rv[internalVertex] * localRate
	if current >= externalRate {
		// Scaling only ever goes up; an internal endpoint already consuming
		// (or producing) at least the boundary rate is left alone, the
		// interface repeating or discarding the difference.
		return rv, nil
	}
	if current == 0 || externalRate%current != 0 {
		return nil, fmt.Errorf("brv: interface rate %d not an integer multiple of component rate %d", externalRate, current)
	}
	scale := externalRate / current
	scaled := make(Vector, len(rv))
	for v, count := range rv {
		scaled[v] = count * scale
	}
	return scaled, nil
}
