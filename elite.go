package monaco

import (
	"github.com/petar/GoLLRB/llrb"
)

// Elite keeps the n lowest-potential states seen during a run, ordered by
// potential.  It is a mode-finding diagnostic: after a run its contents are
// the best states the sampler ever evaluated, whether or not they survived
// resampling.
type Elite struct {
	n    int
	tree *llrb.LLRB
}

type eliteItem struct {
	pos []float64
	u   float64
}

func (it eliteItem) Less(than llrb.Item) bool { return it.u < than.(eliteItem).u }

func NewElite(n int) *Elite {
	if n < 1 {
		n = 1
	}
	return &Elite{n: n, tree: llrb.New()}
}

// Add offers a state to the tracker; states worse than the current n best
// are discarded.
func (e *Elite) Add(pos []float64, u float64) {
	if e.tree.Len() >= e.n {
		worst := e.tree.Max()
		if worst != nil && u >= worst.(eliteItem).u {
			return
		}
	}
	e.tree.InsertNoReplace(eliteItem{pos: append([]float64{}, pos...), u: u})
	for e.tree.Len() > e.n {
		e.tree.DeleteMax()
	}
}

func (e *Elite) Len() int { return e.tree.Len() }

// States returns the tracked states and their potentials in ascending
// potential order.
func (e *Elite) States() (pos [][]float64, u []float64) {
	if e.tree.Len() == 0 {
		return nil, nil
	}
	e.tree.AscendGreaterOrEqual(e.tree.Min(), func(i llrb.Item) bool {
		it := i.(eliteItem)
		pos = append(pos, append([]float64{}, it.pos...))
		u = append(u, it.u)
		return true
	})
	return pos, u
}
