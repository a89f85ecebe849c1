package catalog

import (
	"fmt"
	"math"
	"sort"
)

// Normalize rescales weights so they sum to 1 when the stored sum is off by more than WeightTolerance.
func Normalize(prizes []Prize) []Prize {
	var sum float64
	for _, p := range prizes {
		sum += p.Weight
	}
	out := make([]Prize, len(prizes))
	copy(out, prizes)
	if sum <= 0 || math.Abs(sum-1) <= WeightTolerance {
		return out
	}
	for i := range out {
		out[i].Weight /= sum
	}
	return out
}

// Table is a cumulative distribution over a case's prizes in catalog order.
// The last bound is pinned to exactly 1.
type Table struct {
	bounds []float64
}

func NewTable(prizes []Prize) Table {
	bounds := make([]float64, len(prizes))
	var acc float64
	for i, p := range prizes {
		acc += p.Weight
		bounds[i] = acc
	}
	if n := len(bounds); n > 0 {
		bounds[n-1] = 1
	}
	return Table{bounds: bounds}
}

func (t Table) Len() int {
	return len(t.bounds)
}

// Pick returns the index of the first prize whose cumulative bound is >= r.
// When no bound qualifies (r at or past the top after float drift) the last prize wins.
func (t Table) Pick(r float64) int {
	n := len(t.bounds)
	if n == 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool { return t.bounds[i] >= r })
	if i == n {
		return n - 1
	}
	return i
}

// Draw performs count independent draws from the case. rnd must return values in [0,1).
func (c *Catalog) Draw(caseID string, count int, rnd func() float64) ([]Entry, error) {
	if count < 1 || count > MaxDraws {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	cs, ok := c.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCase, caseID)
	}

	won := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		idx := cs.table.Pick(rnd())
		if idx < 0 {
			return nil, fmt.Errorf("%w: case %s has an empty table", ErrIntegrity, caseID)
		}
		name := cs.Prizes[idx].Name
		entry, ok := c.entries[name]
		if !ok {
			return nil, fmt.Errorf("%w: case %s drew unknown prize %q", ErrIntegrity, caseID, name)
		}
		won = append(won, entry)
	}
	return won, nil
}
