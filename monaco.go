// Package monaco implements population Monte Carlo samplers over arbitrary
// metric spaces and unnormalized target densities.  The samplers share a
// single propose/evaluate/update loop driven by Solver; the concrete
// algorithms - parallel Metropolis-Hastings, collective Monte Carlo and its
// adaptive variants, and a non-parametric adaptive importance sampler - live
// in the pmh, cmc and npais subpackages and plug into the loop through the
// Method interface.
//
// Targets are expressed as potentials: unnormalized negative log-densities
// framed so that lower values are more probable.  A potential of +Inf marks
// an infeasible state and always results in a rejection or a zero weight -
// it is a first-class signal, not an error.
package monaco

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Space is the metric sampling domain shared by every sampler.  Positions
// are dense row vectors; batches are n-by-Dim matrices with one state per
// row.  Implementations must be immutable once constructed so that a single
// Space can back any number of concurrent runs.
type Space interface {
	// Dim returns the dimension of states in the space.
	Dim() int
	// SampleUniform draws n independent states uniformly from the bounded
	// domain using rng.
	SampleUniform(n int, rng *rand.Rand) *mat.Dense
	// Distance returns the metric distance between x and y.
	Distance(x, y []float64) float64
	// BallVolume returns the volume of a metric ball of radius r.  It must
	// be positive and strictly increasing in r; proposal kernels use it to
	// normalize their densities.
	BallVolume(r float64) float64
	// Project maps x in place onto the admissible domain, e.g. by clamping
	// to box bounds.
	Project(x []float64)
}

// Target supplies the potential to sample from.  Potential must be pure: no
// state, no side effects.  The Solver always calls it with the whole
// population batched in x, one state per row.
type Target interface {
	Potential(x *mat.Dense) []float64
}

// PotentialFunc adapts a plain per-state potential to the batched Target
// interface.
type PotentialFunc func(x []float64) float64

func (f PotentialFunc) Potential(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	u := make([]float64, n)
	for i := range u {
		u[i] = f(x.RawRowView(i))
	}
	return u
}

// Sampler is the optional reference-sampling side of a target.  It is only
// ever used by diagnostics; no algorithm in this module draws from it.
type Sampler interface {
	Sample(n int, rng *rand.Rand) *mat.Dense
}

// Run is the mutable state of a single sampler execution.  A Run is
// exclusively owned by the Solver that created it; Methods receive it during
// Init, Propose and Update and must not retain it across iterations.
type Run struct {
	Space Space
	Rng   *rand.Rand
	Pop   *Population
	Iter  int
	Beta  float64

	// Per-iteration report fields.  The Solver zeroes them before Update
	// and copies them into the iteration's Snapshot afterwards.

	// AcceptRate is the population-averaged acceptance statistic of the
	// iteration (fraction of accepted moves for MH-style updates, mean
	// acceptance weight for collective ones).
	AcceptRate float64
	// ESS is the effective sample size of the weight vector produced by
	// the update, before any resampling.  Left at zero, the Solver falls
	// back to the effective sample size of the population weights.
	ESS float64
	// Clamped counts particles whose weight or potential had to be clamped
	// or zeroed to contain a numerical problem.
	Clamped int
	// Scales, when non-nil, is the proposal scale-mixture weight vector in
	// effect this iteration.  Adaptive methods report it so that History
	// exposes the bandwidth trajectory.
	Scales []float64
	// Memory is the number of proposal components accumulated by
	// non-Markovian methods, zero for everything else.
	Memory int
}

// Method is the algorithm-specific portion of the sampling loop.  The Solver
// owns control flow and every call to Target; a Method only decides where
// candidates come from and how their potentials fold back into the
// population.
type Method interface {
	// Init validates the method configuration and resets any per-run state.
	// It is called once per run, before the first iteration.
	Init(r *Run) error
	// Propose returns one candidate position per particle, as a matrix with
	// the same shape as r.Pop.X.
	Propose(r *Run) *mat.Dense
	// Update folds the candidates and their potentials u into r.Pop.  The
	// potentials are raw (not annealed); the inverse temperature to apply
	// is r.Beta.  Update must leave r.Pop with normalized weights and must
	// contain per-particle numerical trouble rather than fail the run.
	Update(r *Run, cand *mat.Dense, u []float64) error
}
