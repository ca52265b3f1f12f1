package npais

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
	"github.com/antoinediez/monaco/space"
)

func newMethod(t *testing.T, sp *space.Box, scales []float64) *Method {
	t.Helper()
	k, err := kernel.NewBall(sp, scales)
	if err != nil {
		t.Fatal(err)
	}
	q0, err := NewUniform(sp, sp.Volume())
	if err != nil {
		t.Fatal(err)
	}
	return New(k, q0, 0)
}

func TestInitValidation(t *testing.T) {
	sp := space.Unit(2)
	k, err := kernel.NewBall(sp, []float64{0.1})
	if err != nil {
		t.Fatal(err)
	}
	q0, err := NewUniform(sp, 1)
	if err != nil {
		t.Fatal(err)
	}
	pop := &monaco.Run{Pop: monaco.NewPopulation(mat.NewDense(5, 2, nil))}

	cases := []struct {
		name string
		m    *Method
	}{
		{"nil kernel", New(nil, q0, 0)},
		{"nil q0", New(k, nil, 0)},
		{"batch size mismatch", New(k, q0, 7)},
		{"q0 mass zero", New(k, q0, 0, MixQ0(0))},
		{"q0 mass one", New(k, q0, 0, MixQ0(1))},
	}
	for _, c := range cases {
		if err := c.m.Init(pop); !errors.Is(err, monaco.ErrConfig) {
			t.Errorf("%v: expected a configuration error, got %v", c.name, err)
		}
	}

	if _, err := NewUniform(sp, 0); !errors.Is(err, monaco.ErrConfig) {
		t.Errorf("zero volume: expected a configuration error, got %v", err)
	}
}

func TestUniformProposal(t *testing.T) {
	sp := space.Unit(3)
	q0, err := NewUniform(sp, sp.Volume())
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(6))

	x := q0.Sample(100, rng)
	n, d := x.Dims()
	if n != 100 || d != 3 {
		t.Fatalf("sample is %vx%v", n, d)
	}
	for i := 0; i < n; i++ {
		for _, v := range x.RawRowView(i) {
			if v < 0 || v > 1 {
				t.Fatalf("sample left the unit cube: %v", v)
			}
		}
	}
	for _, u := range q0.Potential(x) {
		if u != 0 {
			t.Errorf("unit-volume potential is %v, want 0 (log 1)", u)
		}
	}
}

func TestMemoryGrowsByBatch(t *testing.T) {
	sp := space.Unit(2)
	target := bench.Gaussian{Mu: []float64{0.5, 0.5}, Sigma: 0.2}
	m := newMethod(t, sp, []float64{0.1})
	rng := rand.New(rand.NewSource(12))
	start := sp.SampleUniform(25, rng)

	hist, err := monaco.New(sp, start, m, anneal.Const{}, monaco.Seed(12)).
		Fit(target).Run(context.Background(), 8)
	if err != nil {
		t.Fatal(err)
	}

	// one batch of N components appended per iteration, nothing pruned
	for i, snap := range hist {
		if snap.Memory != 25*i {
			t.Errorf("snapshot %v: memory holds %v components, want %v", i, snap.Memory, 25*i)
		}
	}
	if m.Memory() != 25*8 {
		t.Errorf("final memory %v, want %v", m.Memory(), 25*8)
	}
}

func TestBatchWeightsNormalized(t *testing.T) {
	sp := space.Unit(2)
	target := bench.Gaussian{Mu: []float64{0.5, 0.5}, Sigma: 0.2}
	m := newMethod(t, sp, []float64{0.05, 0.2})
	rng := rand.New(rand.NewSource(27))
	start := sp.SampleUniform(30, rng)

	hist, err := monaco.New(sp, start, m, anneal.New(4), monaco.Seed(27)).
		Fit(target).Run(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}

	for _, snap := range hist[1:] {
		tot := 0.0
		for _, lw := range snap.LogW {
			tot += math.Exp(lw)
		}
		if math.Abs(tot-1) > 1e-9 {
			t.Errorf("iter %v: batch weights sum to %v", snap.Iter, tot)
		}
		if snap.Accept < 0 || snap.Accept > 1+1e-12 {
			t.Errorf("iter %v: batch quality %v outside [0,1]", snap.Iter, snap.Accept)
		}
		if snap.ESS <= 0 {
			t.Errorf("iter %v: memory ESS %v", snap.Iter, snap.ESS)
		}
	}
}

func TestMemoryNormalizers(t *testing.T) {
	mem := newMemory()
	if mem.ess() != 0 {
		t.Errorf("empty memory ESS %v, want 0", mem.ess())
	}

	logw := []float64{math.Log(1), math.Log(2), math.Log(3), math.Log(4)}
	for i, lw := range logw {
		mem.append([]float64{float64(i)}, 0.1, lw)
	}

	if got, want := math.Exp(mem.logTot), 10.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("weight total %v, want %v", got, want)
	}
	if got, want := math.Exp(mem.logSqTot), 30.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("squared total %v, want %v", got, want)
	}
	if got, want := mem.ess(), 100.0/30; math.Abs(got-want) > 1e-9 {
		t.Errorf("ESS %v, want %v", got, want)
	}

	probs := mem.probs()
	for i, p := range probs {
		want := float64(i+1) / 10
		if math.Abs(p-want) > 1e-12 {
			t.Errorf("component %v probability %v, want %v", i, p, want)
		}
	}

	// a -Inf weight component is recorded but carries no mass
	mem.append([]float64{9}, 0.1, math.Inf(-1))
	if mem.len() != 5 {
		t.Errorf("memory length %v, want 5", mem.len())
	}
	if got := math.Exp(mem.logTot); math.Abs(got-10) > 1e-9 {
		t.Errorf("weight total %v after -Inf append, want 10", got)
	}
}

func TestLogAddExp(t *testing.T) {
	cases := []struct{ a, b, want float64 }{
		{math.Log(2), math.Log(3), math.Log(5)},
		{math.Inf(-1), math.Log(3), math.Log(3)},
		{math.Log(3), math.Inf(-1), math.Log(3)},
		{1000, 1000, 1000 + math.Log(2)},
	}
	for _, c := range cases {
		if got := logAddExp(c.a, c.b); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("logAddExp(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestMemoryESSGrows(t *testing.T) {
	sp := space.Unit(2)
	target := bench.Gaussian{Mu: []float64{0.5, 0.5}, Sigma: 0.3}

	var early, late float64
	for _, seed := range []uint64{1, 2, 3} {
		m := newMethod(t, sp, []float64{0.1, 0.3})
		rng := rand.New(rand.NewSource(seed))
		start := sp.SampleUniform(40, rng)

		hist, err := monaco.New(sp, start, m, anneal.Const{}, monaco.Seed(seed)).
			Fit(target).Run(context.Background(), 16)
		if err != nil {
			t.Fatal(err)
		}
		early += hist[5].ESS
		late += hist[16].ESS
	}
	early /= 3
	late /= 3
	t.Logf("mean memory ESS: iteration 5 %.1f, iteration 16 %.1f", early, late)
	if late <= early {
		t.Errorf("memory ESS did not grow with history: %.1f -> %.1f", early, late)
	}
}
