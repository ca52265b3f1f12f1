package monaco

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Population is the mutable set of particles evolved in place by a run.  The
// number of particles is fixed for the lifetime of a run; weights are kept
// in log space and, outside of an Update call, always normalized so that
// their log-sum-exp is zero.
type Population struct {
	// X holds one particle position per row.
	X *mat.Dense
	// LogW holds the normalized log-weight of each particle.
	LogW []float64
	// U holds the raw (un-annealed) potential at each position, maintained
	// by the Solver.
	U []float64
	// Scale holds the proposal scale index assigned to each particle by the
	// most recent Propose call.
	Scale []int
}

// NewPopulation wraps the positions in x as a uniformly weighted population.
// The caller hands over ownership of x.
func NewPopulation(x *mat.Dense) *Population {
	n, _ := x.Dims()
	p := &Population{
		X:     x,
		LogW:  make([]float64, n),
		U:     make([]float64, n),
		Scale: make([]int, n),
	}
	for i := range p.U {
		p.U[i] = math.Inf(1)
	}
	p.SetUniform()
	return p
}

func (p *Population) Len() int { n, _ := p.X.Dims(); return n }

func (p *Population) Dim() int { _, d := p.X.Dims(); return d }

// Clone returns a deep copy of the population.
func (p *Population) Clone() *Population {
	c := &Population{
		X:     mat.DenseCopyOf(p.X),
		LogW:  append([]float64{}, p.LogW...),
		U:     append([]float64{}, p.U...),
		Scale: append([]int{}, p.Scale...),
	}
	return c
}

// SetUniform resets all weights to 1/n.
func (p *Population) SetUniform() {
	lw := -math.Log(float64(p.Len()))
	for i := range p.LogW {
		p.LogW[i] = lw
	}
}

// Normalize rescales the log-weights so that their log-sum-exp is zero.  NaN
// weights are zeroed and counted as clamped.  If every weight is zero the
// population is reset to uniform weights - a single degenerate iteration
// must not poison the run - and all n particles count as clamped.
func (p *Population) Normalize() (clamped int) {
	for i, lw := range p.LogW {
		if math.IsNaN(lw) || math.IsInf(lw, 1) {
			p.LogW[i] = math.Inf(-1)
			clamped++
		}
	}
	total := floats.LogSumExp(p.LogW)
	if math.IsInf(total, -1) {
		p.SetUniform()
		return p.Len()
	}
	for i := range p.LogW {
		p.LogW[i] -= total
	}
	return clamped
}

// Weights returns the weights in probability space as a fresh slice.
func (p *Population) Weights() []float64 {
	w := make([]float64, len(p.LogW))
	for i, lw := range p.LogW {
		w[i] = math.Exp(lw)
	}
	return w
}

// ESS returns the effective sample size 1/sum(w^2) of the normalized
// weights.
func (p *Population) ESS() float64 { return EffectiveSize(p.Weights()) }

// Mean returns the weighted empirical mean of the population.
func (p *Population) Mean() []float64 {
	w := p.Weights()
	m := make([]float64, p.Dim())
	col := make([]float64, p.Len())
	for j := range m {
		mat.Col(col, j, p.X)
		m[j] = stat.Mean(col, w)
	}
	return m
}

// Std returns the weighted per-dimension standard deviation of the
// population, a cheap spread diagnostic recorded in every Snapshot.
func (p *Population) Std() []float64 {
	w := p.Weights()
	s := make([]float64, p.Dim())
	col := make([]float64, p.Len())
	for j := range s {
		mat.Col(col, j, p.X)
		s[j] = stat.StdDev(col, w)
	}
	return s
}

// Adopt replaces particle i with the candidate row cand[j] and its raw
// potential u[j].
func (p *Population) Adopt(i int, cand *mat.Dense, u []float64, j int) {
	p.X.SetRow(i, cand.RawRowView(j))
	p.U[i] = u[j]
}

// EffectiveSize returns (sum w)^2 / sum(w^2) for a weight vector w, i.e.
// 1/sum(w^2) when w is normalized.  It is zero for an all-zero vector.
func EffectiveSize(w []float64) float64 {
	var tot, sq float64
	for _, v := range w {
		tot += v
		sq += v * v
	}
	if sq == 0 {
		return 0
	}
	return tot * tot / sq
}
