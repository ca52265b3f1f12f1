// Package kernel implements the multi-scale ball-mixture random-walk
// proposal shared by the monaco samplers.  A candidate is produced by
// picking a radius from a small set of scales according to a mixture weight
// vector, then stepping to a uniformly random point of the ball of that
// radius around the current state.  The mixture weights are uniform by
// default; adaptive samplers re-weight them online from population
// feedback.
package kernel

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/antoinediez/monaco"
)

// probFloor is the smallest mixture weight an adaptive update may leave on
// a scale.  A scale driven to exactly zero could never recover under the
// multiplicative re-weighting rule.
const probFloor = 1e-6

// Ball is a symmetric ball-mixture proposal over a monaco.Space.  The
// mixture weights are per-run mutable state: a Ball must not be shared
// between concurrent runs, though a single run may hand it to every
// particle.
type Ball struct {
	space  monaco.Space
	scales []float64
	probs  []float64
}

// NewBall builds a ball-mixture proposal with the given scale radii and
// uniform mixture weights.
func NewBall(sp monaco.Space, scales []float64) (*Ball, error) {
	if sp == nil {
		return nil, errors.New("kernel: nil space")
	}
	if len(scales) == 0 {
		return nil, errors.New("kernel: at least one scale is required")
	}
	for i, r := range scales {
		if !(r > 0) || math.IsInf(r, 1) {
			return nil, errors.Errorf("kernel: scale %v is %v, want a positive radius", i, r)
		}
	}
	k := &Ball{
		space:  sp,
		scales: append([]float64{}, scales...),
	}
	k.Reset()
	return k, nil
}

// K returns the number of scales in the mixture.
func (k *Ball) K() int { return len(k.scales) }

// Scales returns a copy of the scale radii.
func (k *Ball) Scales() []float64 { return append([]float64{}, k.scales...) }

// Probs returns a copy of the current mixture weights.
func (k *Ball) Probs() []float64 { return append([]float64{}, k.probs...) }

// Reset restores uniform mixture weights.  Methods call it in Init so that
// repeated runs do not inherit the adaptation of earlier ones.
func (k *Ball) Reset() {
	k.probs = make([]float64, len(k.scales))
	for i := range k.probs {
		k.probs[i] = 1 / float64(len(k.scales))
	}
}

// Sample draws one candidate per row of x and records the scale index used
// for row i in scale[i].  Candidates are projected back onto the space.
func (k *Ball) Sample(x *mat.Dense, scale []int, rng *rand.Rand) *mat.Dense {
	n, d := x.Dims()
	cand := mat.NewDense(n, d, nil)
	cat := distuv.NewCategorical(k.probs, rng)
	for i := 0; i < n; i++ {
		s := 0
		if len(k.scales) > 1 {
			s = int(cat.Rand())
		}
		if scale != nil {
			scale[i] = s
		}
		row := cand.RawRowView(i)
		k.offset(row, x.RawRowView(i), k.scales[s], rng)
	}
	return cand
}

// DrawScale draws a scale index from the current mixture weights.
func (k *Ball) DrawScale(rng *rand.Rand) int {
	if len(k.scales) == 1 {
		return 0
	}
	cat := distuv.NewCategorical(k.probs, rng)
	return int(cat.Rand())
}

// Offset writes into dst a uniform draw from the ball of radius r around
// center, projected onto the space.
func (k *Ball) Offset(dst, center []float64, r float64, rng *rand.Rand) {
	k.offset(dst, center, r, rng)
}

func (k *Ball) offset(dst, center []float64, r float64, rng *rand.Rand) {
	// isotropic direction from a normalized Gaussian draw, radius from the
	// inverse-CDF of the ball radial distribution
	norm := 0.0
	for j := range dst {
		v := rng.NormFloat64()
		dst[j] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	rad := r * math.Pow(rng.Float64(), 1/float64(len(dst)))
	for j := range dst {
		dst[j] = center[j] + rad*dst[j]/norm
	}
	k.space.Project(dst)
}

// ComponentDensity returns the density at y of a single uniform ball
// component of radius r centered at x: 1/BallVolume(r) inside the ball,
// zero outside.  Non-Markovian samplers use it to evaluate their
// accumulated mixtures component by component.
func (k *Ball) ComponentDensity(x, y []float64, r float64) float64 {
	if k.space.Distance(x, y) > r {
		return 0
	}
	return 1 / k.space.BallVolume(r)
}

// Density returns the mixture proposal density q(y|x) under the current
// mixture weights.
func (k *Ball) Density(x, y []float64) float64 {
	return k.densityAt(k.space.Distance(x, y), k.probs)
}

func (k *Ball) densityAt(d float64, probs []float64) float64 {
	q := 0.0
	for i, r := range k.scales {
		if d <= r {
			q += probs[i] / k.space.BallVolume(r)
		}
	}
	return q
}

// LogRatio returns the detailed-balance correction log q(x|y) - log q(y|x)
// for a move from x to y, where the forward draw y|x uses the mixture
// weights fwd and the reverse draw x|y uses bwd.  The acceptance
// probability multiplies by exp of this value.  The ball kernel is a
// function of the distance alone, so the correction is identically zero
// whenever the two weight vectors agree; it only becomes non-trivial when
// a per-particle scale adaptation assigns different mixtures to the
// forward and reverse directions.  A reverse density of zero makes the
// move irreversible and the correction -Inf.
func (k *Ball) LogRatio(x, y []float64, fwd, bwd []float64) float64 {
	if floats.Equal(fwd, bwd) {
		return 0
	}
	d := k.space.Distance(x, y)
	qf := k.densityAt(d, fwd)
	qb := k.densityAt(d, bwd)
	if qf == 0 && qb == 0 {
		return 0
	}
	return math.Log(qb) - math.Log(qf)
}

// Reweight updates the mixture weights multiplicatively from per-scale
// performance feedback: p_k is scaled by perf[k] and the vector is
// renormalized, with a small floor keeping every scale reachable.  Uniform
// feedback across scales is a fixed point.  Negative feedback entries are
// treated as zero.
func (k *Ball) Reweight(perf []float64) error {
	if len(perf) != len(k.scales) {
		return errors.Errorf("kernel: feedback length %v != scale count %v", len(perf), len(k.scales))
	}
	next := make([]float64, len(k.probs))
	tot := 0.0
	for i, p := range k.probs {
		f := perf[i]
		if f < 0 || math.IsNaN(f) {
			f = 0
		}
		next[i] = p * f
		tot += next[i]
	}
	if tot == 0 {
		// no scale produced any signal this iteration; keep the mixture
		return nil
	}
	for i := range next {
		next[i] = math.Max(next[i]/tot, probFloor)
	}
	floats.Scale(1/floats.Sum(next), next)
	k.probs = next
	return nil
}
