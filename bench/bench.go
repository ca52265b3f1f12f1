// Package bench provides target distributions for testing the monaco
// samplers: isotropic Gaussians, Gaussian mixtures with known reference
// samplers, and closed-form potentials on the unit cube.
package bench

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Func is a benchmark target: a potential with a name and, where a closed
// form exists, a reference sampler and known mean for checking convergence.
type Func interface {
	Name() string
	Potential(x *mat.Dense) []float64
}

// Gaussian is an isotropic Gaussian with mean Mu and deviation Sigma.
type Gaussian struct {
	Mu    []float64
	Sigma float64
}

func (g Gaussian) Name() string { return "Gaussian" }

func (g Gaussian) Potential(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	u := make([]float64, n)
	s2 := 2 * g.Sigma * g.Sigma
	for i := range u {
		row := x.RawRowView(i)
		d2 := 0.0
		for j, v := range row {
			dv := v - g.Mu[j]
			d2 += dv * dv
		}
		u[i] = d2 / s2
	}
	return u
}

func (g Gaussian) Mean() []float64 { return append([]float64{}, g.Mu...) }

// Sample draws n reference states; diagnostics only.
func (g Gaussian) Sample(n int, rng *rand.Rand) *mat.Dense {
	d := len(g.Mu)
	norm := distuv.Normal{Mu: 0, Sigma: g.Sigma, Src: rng}
	x := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := range row {
			row[j] = g.Mu[j] + norm.Rand()
		}
	}
	return x
}

// Mixture is a weighted blend of isotropic Gaussians: component m has mean
// Mu row m, deviation Sigma[m] and weight W[m].
type Mixture struct {
	Mu    *mat.Dense
	Sigma []float64
	W     []float64
}

// NewMixture validates and normalizes the component weights.
func NewMixture(mu *mat.Dense, sigma, w []float64) (Mixture, error) {
	m, _ := mu.Dims()
	if len(sigma) != m || len(w) != m {
		return Mixture{}, errors.Errorf("bench: %v means but %v deviations and %v weights", m, len(sigma), len(w))
	}
	tot := 0.0
	for i, v := range w {
		if !(v > 0) {
			return Mixture{}, errors.Errorf("bench: non-positive mixture weight %v", v)
		}
		if !(sigma[i] > 0) {
			return Mixture{}, errors.Errorf("bench: non-positive deviation %v", sigma[i])
		}
		tot += v
	}
	wn := make([]float64, m)
	for i, v := range w {
		wn[i] = v / tot
	}
	return Mixture{Mu: mat.DenseCopyOf(mu), Sigma: append([]float64{}, sigma...), W: wn}, nil
}

// RandomMixture generates m peaky Gaussians in the unit cube, the toy
// multimodal family used throughout the examples: means in [0.25,0.75]^dim,
// deviations 0.005 + 0.1*s^6 with s uniform.
func RandomMixture(m, dim int, rng *rand.Rand) Mixture {
	mu := mat.NewDense(m, dim, nil)
	sigma := make([]float64, m)
	w := make([]float64, m)
	for i := 0; i < m; i++ {
		row := mu.RawRowView(i)
		for j := range row {
			row[j] = 0.25 + 0.5*rng.Float64()
		}
		sigma[i] = 0.005 + 0.1*math.Pow(rng.Float64(), 6)
		w[i] = rng.Float64()
	}
	mix, err := NewMixture(mu, sigma, w)
	if err != nil {
		panic(err)
	}
	return mix
}

func (g Mixture) Name() string { return "GaussianMixture" }

func (g Mixture) Potential(x *mat.Dense) []float64 {
	n, d := x.Dims()
	m, _ := g.Mu.Dims()
	u := make([]float64, n)
	df := float64(d)
	terms := make([]float64, m)
	for i := range u {
		row := x.RawRowView(i)
		// -logsumexp over components of log w_c + log N(x; mu_c, sigma_c)
		max := math.Inf(-1)
		for c := 0; c < m; c++ {
			mu := g.Mu.RawRowView(c)
			d2 := 0.0
			for j, v := range row {
				dv := v - mu[j]
				d2 += dv * dv
			}
			terms[c] = math.Log(g.W[c]) - d2/(2*g.Sigma[c]*g.Sigma[c]) -
				df*math.Log(g.Sigma[c]*math.Sqrt(2*math.Pi))
			if terms[c] > max {
				max = terms[c]
			}
		}
		if math.IsInf(max, -1) {
			u[i] = math.Inf(1)
			continue
		}
		sum := 0.0
		for _, t := range terms {
			sum += math.Exp(t - max)
		}
		u[i] = -(max + math.Log(sum))
	}
	return u
}

func (g Mixture) Mean() []float64 {
	_, d := g.Mu.Dims()
	mean := make([]float64, d)
	for c, w := range g.W {
		mu := g.Mu.RawRowView(c)
		for j := range mean {
			mean[j] += w * mu[j]
		}
	}
	return mean
}

// Sample draws n reference states; diagnostics only.
func (g Mixture) Sample(n int, rng *rand.Rand) *mat.Dense {
	_, d := g.Mu.Dims()
	cat := distuv.NewCategorical(g.W, rng)
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	x := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		c := int(cat.Rand())
		mu := g.Mu.RawRowView(c)
		row := x.RawRowView(i)
		for j := range row {
			row[j] = mu[j] + g.Sigma[c]*norm.Rand()
		}
	}
	return x
}

// Unit wraps an arbitrary closed-form potential over the unit cube.
type Unit struct {
	Label string
	F     func(x []float64) float64
}

func (u Unit) Name() string { return u.Label }

func (u Unit) Potential(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = u.F(x.RawRowView(i))
	}
	return out
}

// Ackley returns the striped Ackley potential on the unit cube, a rugged
// multimodal test landscape.
func Ackley(stripes float64) Unit {
	return Unit{
		Label: "Ackley",
		F: func(x []float64) float64 {
			sq := 0.0
			cs := 0.0
			for _, v := range x {
				s := (v - 0.5) * stripes
				sq += s * s
				cs += math.Cos(2 * math.Pi * s)
			}
			d := float64(len(x))
			f1 := 20 * math.Exp(-0.2*math.Sqrt(sq/d))
			f2 := math.Exp(cs / d)
			return -(f1 + f2 - math.E - 20) / stripes
		},
	}
}
