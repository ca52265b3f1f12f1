// Package cmc implements Collective Monte Carlo sampling and its adaptive
// variants.  CMC runs the same per-particle Metropolis-Hastings step as
// package pmh, but then treats the acceptance probabilities as importance
// weights across the whole population and resamples N particles with
// replacement proportionally to them: particles that land in high-density
// regions are duplicated, the rest are pruned.  The collective step is what
// lets the population cross between well-separated modes that independent
// chains never exchange.
//
// Two orthogonal refinements compose on top of the base method:
//
//   - Adaptive (MOKA) re-weights the proposal scale mixture every iteration
//     from the average acceptance weight achieved per scale, an online
//     bandwidth selection in the spirit of kernel density estimation.
//   - Deconvolve (KIDS) runs a fixed number of Richardson-Lucy iterations
//     on the weight vector before resampling, undoing the blur introduced
//     by proposing through a finite-bandwidth kernel.
//
// For the collective construction see Clarte, Diez and Feydy, "Collective
// proposal distributions for nonlinear MCMC samplers: mean-field theory and
// fast implementation" (2021).
package cmc

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/antoinediez/monaco"
	"github.com/antoinediez/monaco/kernel"
	"github.com/antoinediez/monaco/pmh"
)

// Option configures a Method.
type Option func(*Method)

// Every resamples only every n-th iteration instead of every iteration, a
// guard against resampling variance on targets where the weight vector
// degenerates faster than the population mixes.
func Every(n int) Option {
	return func(m *Method) { m.every = n }
}

// Adaptive enables MOKA scale-mixture adaptation.
func Adaptive() Option {
	return func(m *Method) { m.adapt = true }
}

// Deconvolve enables KIDS weight deconvolution with inner Richardson-Lucy
// iterations per outer iteration.
func Deconvolve(inner int) Option {
	return func(m *Method) {
		m.deconv = true
		m.inner = inner
	}
}

// Method is the CMC family sampler.  The zero option set is plain CMC;
// Adaptive and Deconvolve switch on the MOKA and KIDS refinements, alone or
// combined.
type Method struct {
	Kernel *kernel.Ball

	every  int
	adapt  bool
	deconv bool
	inner  int
}

// New builds a CMC method around the proposal kernel k.
func New(k *kernel.Ball, opts ...Option) *Method {
	m := &Method{Kernel: k, every: 1}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewMOKA is CMC with adaptive bandwidth selection.
func NewMOKA(k *kernel.Ball) *Method { return New(k, Adaptive()) }

// NewKIDS is CMC with weight deconvolution.
func NewKIDS(k *kernel.Ball, inner int) *Method { return New(k, Deconvolve(inner)) }

// NewMOKAKIDS combines bandwidth selection and weight deconvolution in the
// same outer loop: scales adapt from the previous iteration's feedback, the
// deconvolution always runs against the mixture that generated the current
// candidates.
func NewMOKAKIDS(k *kernel.Ball, inner int) *Method {
	return New(k, Adaptive(), Deconvolve(inner))
}

func (m *Method) Init(r *monaco.Run) error {
	switch {
	case m.Kernel == nil:
		return monaco.ConfigErrf("cmc: nil proposal kernel")
	case m.every < 1:
		return monaco.ConfigErrf("cmc: resample cadence %v < 1", m.every)
	case m.deconv && m.inner <= 0:
		return monaco.ConfigErrf("cmc: deconvolution inner iteration count %v <= 0", m.inner)
	}
	m.Kernel.Reset()
	return nil
}

func (m *Method) Propose(r *monaco.Run) *mat.Dense {
	return m.Kernel.Sample(r.Pop.X, r.Pop.Scale, r.Rng)
}

func (m *Method) Update(r *monaco.Run, cand *mat.Dense, u []float64) error {
	pop := r.Pop
	n := pop.Len()
	probs := m.Kernel.Probs()

	// per-particle MH step, identical to pmh, with the acceptance
	// probabilities kept as collective importance weights
	w := make([]float64, n)
	accSum := 0.0
	for i := 0; i < n; i++ {
		a := pmh.AcceptProb(r.Beta, pop.U[i], u[i],
			m.Kernel.LogRatio(pop.X.RawRowView(i), cand.RawRowView(i), probs, probs))
		w[i] = a
		accSum += a
		if r.Rng.Float64() < a {
			pop.Adopt(i, cand, u, i)
		}
	}
	r.AcceptRate = accSum / float64(n)

	if m.deconv {
		var clamped int
		w, clamped = deconvolve(m.Kernel, pop.X, w, m.inner)
		r.Clamped += clamped
	}

	tot := 0.0
	for _, v := range w {
		tot += v
	}
	if tot == 0 {
		// every candidate infeasible or zero-weighted; keep the current
		// population rather than resampling from nothing
		r.Clamped += n
		pop.SetUniform()
		return nil
	}
	for i := range w {
		w[i] /= tot
	}
	r.ESS = monaco.EffectiveSize(w)

	if m.adapt {
		if err := m.Kernel.Reweight(scalePerf(w, pop.Scale, m.Kernel.K())); err != nil {
			return err
		}
		r.Scales = m.Kernel.Probs()
	}

	for i, v := range w {
		pop.LogW[i] = math.Log(v)
	}
	if n > 1 && (r.Iter+1)%m.every == 0 {
		m.resample(r, w)
		pop.SetUniform()
	}
	return nil
}

// resample replaces the population with a multinomial draw from itself,
// proportional to the normalized weights w.
func (m *Method) resample(r *monaco.Run, w []float64) {
	pop := r.Pop
	n := pop.Len()
	cat := distuv.NewCategorical(w, r.Rng)

	oldX := mat.DenseCopyOf(pop.X)
	oldU := append([]float64{}, pop.U...)
	for i := 0; i < n; i++ {
		j := int(cat.Rand())
		pop.X.SetRow(i, oldX.RawRowView(j))
		pop.U[i] = oldU[j]
	}
}
