// Package anneal provides the inverse-temperature schedules used to soften
// a potential early in a run and sharpen it to the true target later.  A
// schedule maps the iteration index t to beta(t) in (0,1]; the samplers
// multiply the potential by beta(t) before computing acceptance
// probabilities and importance weights.
package anneal

// Schedule maps an iteration index to an inverse temperature.  Beta must be
// non-decreasing in t and must reach and hold 1 once annealing is over.
type Schedule interface {
	Beta(t int) float64
}

// Const is the schedule of a run without annealing: beta is identically 1.
type Const struct{}

func (Const) Beta(t int) float64 { return 1 }

// Ramp raises beta linearly from 1/Steps at t=0 to 1 at t=Steps-1, then
// holds it there.
type Ramp struct {
	Steps int
}

func (r Ramp) Beta(t int) float64 {
	if t < 0 {
		t = 0
	}
	if r.Steps <= 0 || t >= r.Steps-1 {
		return 1
	}
	return float64(t+1) / float64(r.Steps)
}

// New returns the conventional schedule for an annealing length: a linear
// ramp over steps iterations, or no annealing at all when steps <= 0.
func New(steps int) Schedule {
	if steps <= 0 {
		return Const{}
	}
	return Ramp{Steps: steps}
}

// Check probes s on 0..horizon-1 and reports whether it is a valid
// schedule: beta in (0,1] everywhere and non-decreasing.
func Check(s Schedule, horizon int) bool {
	prev := 0.0
	for t := 0; t < horizon; t++ {
		b := s.Beta(t)
		if b <= 0 || b > 1 || b < prev {
			return false
		}
		prev = b
	}
	return true
}
