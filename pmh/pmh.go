// Package pmh implements parallel Metropolis-Hastings sampling: one
// independent random-walk chain per particle, evaluated in batches.  The
// population is purely a parallelism device here - chains never interact,
// which is exactly what the collective samplers in package cmc improve on.
package pmh

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/antoinediez/monaco"
	"github.com/antoinediez/monaco/kernel"
)

// Method runs one Metropolis-Hastings accept/reject step per particle per
// iteration, with the annealed potential beta(t)*U.
type Method struct {
	Kernel *kernel.Ball
}

func New(k *kernel.Ball) *Method {
	return &Method{Kernel: k}
}

func (m *Method) Init(r *monaco.Run) error {
	if m.Kernel == nil {
		return monaco.ConfigErrf("pmh: nil proposal kernel")
	}
	m.Kernel.Reset()
	return nil
}

func (m *Method) Propose(r *monaco.Run) *mat.Dense {
	return m.Kernel.Sample(r.Pop.X, r.Pop.Scale, r.Rng)
}

func (m *Method) Update(r *monaco.Run, cand *mat.Dense, u []float64) error {
	pop := r.Pop
	probs := m.Kernel.Probs()
	accepted := 0
	for i := 0; i < pop.Len(); i++ {
		a := AcceptProb(r.Beta, pop.U[i], u[i],
			m.Kernel.LogRatio(pop.X.RawRowView(i), cand.RawRowView(i), probs, probs))
		// one uniform draw per chain regardless of a, so that traces line
		// up particle by particle across methods sharing a seed
		if r.Rng.Float64() < a {
			pop.Adopt(i, cand, u, i)
			accepted++
		}
	}
	r.AcceptRate = float64(accepted) / float64(pop.Len())
	pop.SetUniform()
	return nil
}

// AcceptProb is the Metropolis-Hastings acceptance probability
// min(1, exp(-beta*(uy-ux)) * exp(logRatio)).  An infeasible candidate
// (uy = +Inf) is never accepted; an infeasible current state always
// escapes.
func AcceptProb(beta, ux, uy, logRatio float64) float64 {
	if math.IsInf(uy, 1) {
		return 0
	}
	if math.IsInf(ux, 1) {
		return 1
	}
	a := math.Exp(-beta*(uy-ux) + logRatio)
	if a > 1 {
		return 1
	}
	if math.IsNaN(a) {
		return 0
	}
	return a
}
