// Package npais implements the Non-Parametric Adaptive Importance Sampler,
// a non-Markovian scheme whose proposal at iteration t is a mixture of
// every kernel component sampled at all previous iterations plus a fixed
// initial proposal q0.  Each iteration draws a fresh batch from the mixture,
// weighs it by exp(-beta*U)/q, and appends the batch to the memory, which
// grows without bound by design: accuracy improves with history size at the
// price of storage and of a per-iteration cost that grows with the memory.
//
// The per-iteration acceptance statistic reported to History is the
// normalized effective sample size of the fresh batch; the ESS field is
// computed over the entire memory.
package npais

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/antoinediez/monaco"
	"github.com/antoinediez/monaco/kernel"
)

// Q0 is the initial proposal: a user-supplied density over the whole domain
// with a known sampler and potential (negative log-density, normalized).
type Q0 interface {
	Sample(n int, rng *rand.Rand) *mat.Dense
	Potential(x *mat.Dense) []float64
}

// Uniform is the uniform initial proposal over a bounded space of the given
// volume.  Its potential is the constant log(vol).
type Uniform struct {
	space  monaco.Space
	logVol float64
}

func NewUniform(sp monaco.Space, vol float64) (Uniform, error) {
	if !(vol > 0) {
		return Uniform{}, monaco.ConfigErrf("npais: domain volume %v <= 0", vol)
	}
	return Uniform{space: sp, logVol: math.Log(vol)}, nil
}

func (q Uniform) Sample(n int, rng *rand.Rand) *mat.Dense {
	return q.space.SampleUniform(n, rng)
}

func (q Uniform) Potential(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	u := make([]float64, n)
	for i := range u {
		u[i] = q.logVol
	}
	return u
}

// Option configures a Method.
type Option func(*Method)

// MixQ0 sets the mixture mass permanently reserved for q0 in the proposal.
// Keeping some q0 mass guarantees the proposal stays normalizable and
// heavy enough over the whole domain no matter how the memory concentrates.
func MixQ0(lambda float64) Option {
	return func(m *Method) { m.mix = lambda }
}

// Method is the NPAIS sampler.  N is the batch size appended to the memory
// each iteration; zero means the population size.
type Method struct {
	Kernel *kernel.Ball
	Q0     Q0
	N      int

	mix float64
	mem *memory
}

func New(k *kernel.Ball, q0 Q0, n int, opts ...Option) *Method {
	m := &Method{Kernel: k, Q0: q0, N: n, mix: 0.1}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Method) Init(r *monaco.Run) error {
	switch {
	case m.Kernel == nil:
		return monaco.ConfigErrf("npais: nil proposal kernel")
	case m.Q0 == nil:
		return monaco.ConfigErrf("npais: nil initial proposal q0")
	case m.N != 0 && m.N != r.Pop.Len():
		return monaco.ConfigErrf("npais: batch size %v != population size %v", m.N, r.Pop.Len())
	case m.mix <= 0 || m.mix >= 1:
		return monaco.ConfigErrf("npais: q0 mixture mass %v outside (0,1)", m.mix)
	}
	m.Kernel.Reset()
	m.mem = newMemory()
	return nil
}

// Memory returns the number of proposal components accumulated so far.
func (m *Method) Memory() int { return m.mem.len() }

func (m *Method) Propose(r *monaco.Run) *mat.Dense {
	n := r.Pop.Len()
	if m.mem.len() == 0 || math.IsInf(m.mem.logTot, -1) {
		return m.Q0.Sample(n, r.Rng)
	}

	cand := mat.NewDense(n, r.Pop.Dim(), nil)
	cat := distuv.NewCategorical(m.mem.probs(), r.Rng)
	for i := 0; i < n; i++ {
		if r.Rng.Float64() < m.mix {
			cand.SetRow(i, m.Q0.Sample(1, r.Rng).RawRowView(0))
			continue
		}
		j := int(cat.Rand())
		m.Kernel.Offset(cand.RawRowView(i), m.mem.loc[j], m.mem.bw[j], r.Rng)
	}
	return cand
}

func (m *Method) Update(r *monaco.Run, cand *mat.Dense, u []float64) error {
	pop := r.Pop
	n := pop.Len()

	logq := m.logMixDensity(cand)
	for i := 0; i < n; i++ {
		pop.LogW[i] = -r.Beta*u[i] - logq[i]
		if math.IsInf(u[i], 1) || math.IsNaN(pop.LogW[i]) || math.IsInf(pop.LogW[i], 1) {
			pop.LogW[i] = math.Inf(-1)
		}
	}
	pop.X.Copy(cand)
	copy(pop.U, u)

	// append the fresh batch to the memory before normalizing the batch
	// weights: the memory keeps raw log-weights and its own running
	// normalizer
	scales := m.Kernel.Scales()
	for i := 0; i < n; i++ {
		bw := scales[m.Kernel.DrawScale(r.Rng)]
		m.mem.append(cand.RawRowView(i), bw, pop.LogW[i])
	}

	r.ESS = m.mem.ess()
	r.Memory = m.mem.len()
	r.AcceptRate = batchQuality(pop.LogW)
	return nil
}

// logMixDensity evaluates the log-density of the current memory-mixture
// proposal at every row of x.
func (m *Method) logMixDensity(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	q0pot := m.Q0.Potential(x)
	out := make([]float64, n)

	fresh := m.mem.len() == 0 || math.IsInf(m.mem.logTot, -1)
	var probs []float64
	if !fresh {
		probs = m.mem.probs()
	}
	for i := 0; i < n; i++ {
		if fresh {
			out[i] = -q0pot[i]
			continue
		}
		q := m.mix * math.Exp(-q0pot[i])
		row := x.RawRowView(i)
		for j, p := range probs {
			if p == 0 {
				continue
			}
			q += (1 - m.mix) * p * m.Kernel.ComponentDensity(m.mem.loc[j], row, m.mem.bw[j])
		}
		out[i] = math.Log(q)
	}
	return out
}

// batchQuality is the normalized effective sample size of a fresh batch, in
// [0,1]; it plays the role the acceptance rate plays for the MH-style
// samplers.
func batchQuality(logw []float64) float64 {
	w := make([]float64, len(logw))
	max := math.Inf(-1)
	for _, lw := range logw {
		if lw > max {
			max = lw
		}
	}
	if math.IsInf(max, -1) {
		return 0
	}
	for i, lw := range logw {
		w[i] = math.Exp(lw - max)
	}
	return monaco.EffectiveSize(w) / float64(len(w))
}
