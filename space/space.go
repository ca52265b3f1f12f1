// Package space provides sampling-space geometries for the monaco samplers.
// The only geometry implemented here is the axis-aligned box with the
// Euclidean metric; anything satisfying monaco.Space plugs into the samplers
// the same way.
package space

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Box is a bounded axis-aligned box with the Euclidean metric.  Proposals
// that step outside the box are clamped back onto its boundary by Project.
// A Box is immutable and safe to share across concurrent runs.
type Box struct {
	low, up []float64
}

// NewBox builds a box from lower and upper bound vectors.
func NewBox(low, up []float64) (*Box, error) {
	if len(low) != len(up) {
		return nil, errors.Errorf("space: bound lengths differ: %v != %v", len(low), len(up))
	}
	if len(low) == 0 {
		return nil, errors.New("space: zero-dimensional box")
	}
	for i := range low {
		if !(low[i] < up[i]) {
			return nil, errors.Errorf("space: empty bound range [%v,%v] in dimension %v", low[i], up[i], i)
		}
	}
	return &Box{
		low: append([]float64{}, low...),
		up:  append([]float64{}, up...),
	}, nil
}

// Unit returns the unit hyper-cube [0,1]^dim.
func Unit(dim int) *Box {
	low := make([]float64, dim)
	up := make([]float64, dim)
	for i := range up {
		up[i] = 1
	}
	b, err := NewBox(low, up)
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Box) Dim() int { return len(b.low) }

// Bounds returns copies of the box bounds.
func (b *Box) Bounds() (low, up []float64) {
	return append([]float64{}, b.low...), append([]float64{}, b.up...)
}

// Volume returns the Lebesgue volume of the box.
func (b *Box) Volume() float64 {
	v := 1.0
	for i := range b.low {
		v *= b.up[i] - b.low[i]
	}
	return v
}

// SampleUniform draws n states uniformly from the box.
func (b *Box) SampleUniform(n int, rng *rand.Rand) *mat.Dense {
	x := mat.NewDense(n, b.Dim(), nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := range row {
			row[j] = b.low[j] + rng.Float64()*(b.up[j]-b.low[j])
		}
	}
	return x
}

// Distance returns the Euclidean distance between x and y.
func (b *Box) Distance(x, y []float64) float64 {
	return floats.Distance(x, y, 2)
}

// BallVolume returns the volume of a Euclidean ball of radius r in the
// box's dimension:  pi^(d/2) r^d / Gamma(d/2+1).
func (b *Box) BallVolume(r float64) float64 {
	d := float64(b.Dim())
	return math.Pow(math.Pi, d/2) * math.Pow(r, d) / math.Gamma(d/2+1)
}

// Project clamps x in place onto the box.
func (b *Box) Project(x []float64) {
	for i := range x {
		x[i] = math.Max(b.low[i], x[i])
		x[i] = math.Min(b.up[i], x[i])
	}
}
