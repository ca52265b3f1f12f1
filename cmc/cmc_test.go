package cmc

import (
	"context"
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/antoinediez/monaco"
	"github.com/antoinediez/monaco/anneal"
	"github.com/antoinediez/monaco/bench"
	"github.com/antoinediez/monaco/kernel"
	"github.com/antoinediez/monaco/pmh"
	"github.com/antoinediez/monaco/space"
)

func newKernel(t *testing.T, sp *space.Box, scales []float64) *kernel.Ball {
	t.Helper()
	k, err := kernel.NewBall(sp, scales)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestInitValidation(t *testing.T) {
	sp := space.Unit(2)
	k := newKernel(t, sp, []float64{0.1})

	cases := []struct {
		name string
		m    *Method
	}{
		{"nil kernel", New(nil)},
		{"zero cadence", New(k, Every(0))},
		{"negative cadence", New(k, Every(-2))},
		{"zero inner iterations", New(k, Deconvolve(0))},
	}
	for _, c := range cases {
		if err := c.m.Init(&monaco.Run{}); !errors.Is(err, monaco.ErrConfig) {
			t.Errorf("%v: expected a configuration error, got %v", c.name, err)
		}
	}
}

// A single particle cannot interact with itself: CMC with N=1 must trace
// exactly the same chain as parallel Metropolis-Hastings under a shared seed.
func TestSingleParticleMatchesPMH(t *testing.T) {
	sp := space.Unit(2)
	target := bench.Gaussian{Mu: []float64{0.5, 0.5}, Sigma: 0.15}
	start := mat.NewDense(1, 2, []float64{0.1, 0.9})

	run := func(m monaco.Method) monaco.History {
		hist, err := monaco.New(sp, mat.DenseCopyOf(start), m, anneal.Const{}, monaco.Seed(23)).
			Fit(target).Run(context.Background(), 25)
		if err != nil {
			t.Fatal(err)
		}
		return hist
	}

	hp := run(pmh.New(newKernel(t, sp, []float64{0.05, 0.2})))
	hc := run(New(newKernel(t, sp, []float64{0.05, 0.2})))

	if len(hp) != len(hc) {
		t.Fatalf("history lengths differ: %v vs %v", len(hp), len(hc))
	}
	for i := range hp {
		if !mat.Equal(hp[i].X, hc[i].X) {
			t.Fatalf("iter %v: positions diverged: %v vs %v",
				i, hp[i].X.RawRowView(0), hc[i].X.RawRowView(0))
		}
		if hp[i].U[0] != hc[i].U[0] {
			t.Fatalf("iter %v: potentials diverged: %v vs %v", i, hp[i].U[0], hc[i].U[0])
		}
	}
}

func TestResampleCadence(t *testing.T) {
	sp := space.Unit(2)
	target := bench.Gaussian{Mu: []float64{0.5, 0.5}, Sigma: 0.15}
	rng := rand.New(rand.NewSource(3))
	start := sp.SampleUniform(40, rng)

	hist, err := monaco.New(sp, start, New(newKernel(t, sp, []float64{0.1}), Every(2)), anneal.Const{}, monaco.Seed(3)).
		Fit(target).Run(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}

	uniform := func(lw []float64) bool {
		want := -math.Log(float64(len(lw)))
		for _, v := range lw {
			if math.Abs(v-want) > 1e-9 {
				return false
			}
		}
		return true
	}
	// resampling fires on even snapshots and leaves uniform weights behind;
	// in between the importance weights are carried as-is
	for _, i := range []int{2, 4} {
		if !uniform(hist[i].LogW) {
			t.Errorf("snapshot %v: expected uniform weights after resampling", i)
		}
	}
	for _, i := range []int{1, 3} {
		if uniform(hist[i].LogW) {
			t.Errorf("snapshot %v: weights unexpectedly uniform on a carry iteration", i)
		}
	}
}

func TestAllInfeasibleKeepsPopulation(t *testing.T) {
	sp := space.Unit(2)
	rng := rand.New(rand.NewSource(9))
	start := sp.SampleUniform(10, rng)

	wall := bench.Unit{Label: "wall", F: func(x []float64) float64 { return math.Inf(1) }}
	hist, err := monaco.New(sp, mat.DenseCopyOf(start), New(newKernel(t, sp, []float64{0.1})), anneal.Const{}, monaco.Seed(9)).
		Fit(wall).Run(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}

	for _, snap := range hist[1:] {
		if snap.Clamped < 10 {
			t.Errorf("iter %v: clamped %v particles, expected the whole population", snap.Iter, snap.Clamped)
		}
		for i, lw := range snap.LogW {
			if math.Abs(lw+math.Log(10)) > 1e-9 {
				t.Errorf("iter %v: particle %v weight not reset to uniform: %v", snap.Iter, i, lw)
			}
		}
	}
	// nothing is ever accepted, so positions never move
	if !mat.Equal(hist[0].X, hist.Final().X) {
		t.Error("population moved despite an everywhere-infeasible target")
	}
}

func TestDeconvolveWeightsStayNormalized(t *testing.T) {
	sp := space.Unit(1)
	k := newKernel(t, sp, []float64{0.3})
	rng := rand.New(rand.NewSource(31))
	x := sp.SampleUniform(30, rng)

	w := make([]float64, 30)
	for i := range w {
		w[i] = rng.Float64()
	}

	for inner := 1; inner <= 5; inner++ {
		out, clamped := deconvolve(k, x, w, inner)
		if len(out) != len(w) {
			t.Fatalf("inner=%v: output length %v", inner, len(out))
		}
		tot := 0.0
		for i, v := range out {
			if v < 0 || math.IsNaN(v) {
				t.Errorf("inner=%v: weight %v is %v", inner, i, v)
			}
			tot += v
		}
		if math.Abs(tot-1) > 1e-9 {
			t.Errorf("inner=%v: weights sum to %v", inner, tot)
		}
		if clamped != 0 {
			t.Errorf("inner=%v: clamped %v entries on a well-covered cloud", inner, clamped)
		}
	}
}

func TestDeconvolveSharpens(t *testing.T) {
	sp := space.Unit(1)
	// one scale wide enough that every particle blurs into every other,
	// so the kernel matrix is flat and each inner iteration squares and
	// renormalizes the weights
	k := newKernel(t, sp, []float64{0.5})
	x := mat.NewDense(3, 1, []float64{0.1, 0.3, 0.5})
	w := []float64{0.5, 0.3, 0.2}

	out, clamped := deconvolve(k, x, w, 1)
	if clamped != 0 {
		t.Fatalf("clamped %v entries", clamped)
	}
	if out[0] <= w[0] {
		t.Errorf("dominant weight %v did not sharpen past %v", out[0], w[0])
	}
	if out[2] >= w[2] {
		t.Errorf("weakest weight %v did not shrink below %v", out[2], w[2])
	}
}

func TestDeconvolveZeroInput(t *testing.T) {
	sp := space.Unit(1)
	k := newKernel(t, sp, []float64{0.3})
	x := mat.NewDense(3, 1, []float64{0.1, 0.5, 0.9})

	out, clamped := deconvolve(k, x, []float64{0, 0, 0}, 2)
	for i, v := range out {
		if v != 0 {
			t.Errorf("entry %v is %v, expected zero weights to pass through", i, v)
		}
	}
	if clamped != 0 {
		t.Errorf("clamped %v entries on a zero input", clamped)
	}
}

func TestScalePerf(t *testing.T) {
	w := []float64{0.4, 0.1, 0.3, 0.2}
	scale := []int{0, 0, 1, 1}

	perf := scalePerf(w, scale, 3)
	if math.Abs(perf[0]-0.25) > 1e-12 {
		t.Errorf("scale 0 performance %v, want 0.25", perf[0])
	}
	if math.Abs(perf[1]-0.25) > 1e-12 {
		t.Errorf("scale 1 performance %v, want 0.25", perf[1])
	}
	// an unused scale gets the population mean, a no-op under the
	// multiplicative update
	if math.Abs(perf[2]-0.25) > 1e-12 {
		t.Errorf("unused scale performance %v, want the mean 0.25", perf[2])
	}
}

func TestAdaptiveReportsScales(t *testing.T) {
	sp := space.Unit(2)
	target := bench.Gaussian{Mu: []float64{0.5, 0.5}, Sigma: 0.1}
	rng := rand.New(rand.NewSource(41))
	start := sp.SampleUniform(60, rng)

	hist, err := monaco.New(sp, start, NewMOKA(newKernel(t, sp, []float64{0.01, 0.1, 0.5})), anneal.Const{}, monaco.Seed(41)).
		Fit(target).Run(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}

	for _, snap := range hist[1:] {
		if len(snap.Scales) != 3 {
			t.Fatalf("iter %v: recorded %v mixture weights, want 3", snap.Iter, len(snap.Scales))
		}
		tot := 0.0
		for _, p := range snap.Scales {
			if p <= 0 {
				t.Errorf("iter %v: mixture weight %v not positive", snap.Iter, p)
			}
			tot += p
		}
		if math.Abs(tot-1) > 1e-9 {
			t.Errorf("iter %v: mixture weights sum to %v", snap.Iter, tot)
		}
	}
	t.Logf("final mixture weights: %v", hist.Final().Scales)
}
