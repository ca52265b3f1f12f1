package monaco

import (
	"context"
	"database/sql"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/antoinediez/monaco/anneal"
)

// ErrConfig is the cause of every configuration error surfaced at
// construction or at the start of a run.  Configuration problems fail fast
// and never show up mid-run.
var ErrConfig = errors.New("monaco: invalid configuration")

// ConfigErrf wraps ErrConfig with a description of the offending setting.
// The method subpackages use it so that every configuration failure in the
// suite tests true against ErrConfig.
func ConfigErrf(format string, args ...interface{}) error {
	return errors.WithMessagef(ErrConfig, format, args...)
}

// Option configures a Solver.
type Option func(*Solver)

// Seed seeds the solver's random stream.  Runs are deterministic given the
// seed; the default stream is seeded with 1.
func Seed(seed uint64) Option {
	return func(s *Solver) { s.rng = rand.New(rand.NewSource(seed)) }
}

// Rng hands the solver a random stream directly.  The stream becomes
// exclusively owned by the solver; it must not be shared with concurrent
// runs.
func Rng(rng *rand.Rand) Option {
	return func(s *Solver) { s.rng = rng }
}

// DB mirrors every snapshot into sqlite tables TblParticles and TblIters
// for offline diagnostics.
func DB(db *sql.DB) Option {
	return func(s *Solver) { s.db = db }
}

// TrackElite keeps the n lowest-potential states evaluated anywhere during
// the run, retrievable through Elite.
func TrackElite(n int) Option {
	return func(s *Solver) { s.elite = NewElite(n) }
}

// Solver drives the shared sampling loop: propose, evaluate the annealed
// potential in one batch, update, record.  The algorithm-specific portion is
// delegated to a Method.  A Solver is built once per experiment and may be
// re-run; every call to Run starts from a fresh copy of the initial
// population.
type Solver struct {
	space  Space
	start  *mat.Dense
	method Method
	sched  anneal.Schedule
	target Target

	rng   *rand.Rand
	db    *sql.DB
	rec   *recorder
	elite *Elite
	runs  int
}

// New assembles a solver from a space, an initial population (one state per
// row), a method and an annealing schedule.
func New(sp Space, start *mat.Dense, m Method, sched anneal.Schedule, opts ...Option) *Solver {
	s := &Solver{
		space:  sp,
		start:  start,
		method: m,
		sched:  sched,
		rng:    rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fit binds the target distribution and validates the whole configuration.
// It returns the solver to allow the construction idiom
//
//	hist, err := monaco.New(space, start, method, sched).Fit(target).Run(ctx, 20)
func (s *Solver) Fit(t Target) *Solver {
	s.target = t
	return s
}

func (s *Solver) validate(iters int) error {
	switch {
	case s.space == nil:
		return ConfigErrf("nil space")
	case s.method == nil:
		return ConfigErrf("nil method")
	case s.sched == nil:
		return ConfigErrf("nil annealing schedule")
	case s.target == nil:
		return ConfigErrf("no target bound; call Fit before Run")
	case s.start == nil:
		return ConfigErrf("nil initial population")
	case iters <= 0:
		return ConfigErrf("iteration count %v <= 0", iters)
	}
	n, d := s.start.Dims()
	if n == 0 {
		return ConfigErrf("empty initial population")
	}
	if d != s.space.Dim() {
		return ConfigErrf("initial population dimension %v != space dimension %v", d, s.space.Dim())
	}
	if !anneal.Check(s.sched, iters) {
		return ConfigErrf("annealing schedule is not non-decreasing in (0,1] over %v iterations", iters)
	}
	return nil
}

// Elite returns the tracker configured with TrackElite, or nil.
func (s *Solver) Elite() *Elite { return s.elite }

// Run executes iters iterations of the bound method and returns the run's
// history.  The context is only consulted between iterations: cancellation
// never interrupts an iteration halfway, so the returned history is always
// a consistent prefix of the full run.
func (s *Solver) Run(ctx context.Context, iters int) (History, error) {
	if err := s.validate(iters); err != nil {
		return nil, err
	}
	if s.db != nil && s.rec == nil {
		rec, err := newRecorder(s.db, s.space.Dim())
		if err != nil {
			return nil, err
		}
		s.rec = rec
	}

	r := &Run{
		Space: s.space,
		Rng:   s.rng,
		Pop:   NewPopulation(mat.DenseCopyOf(s.start)),
		Beta:  s.sched.Beta(0),
	}
	if err := s.method.Init(r); err != nil {
		return nil, err
	}

	runID := s.runs
	s.runs++

	hist := make(History, 0, iters+1)
	r.Pop.U = s.eval(r, r.Pop.X)
	if err := s.snapshot(runID, &hist, r, 0); err != nil {
		return hist, err
	}

	for t := 0; t < iters; t++ {
		if err := ctx.Err(); err != nil {
			return hist, err
		}

		r.Iter = t
		r.Beta = s.sched.Beta(t)
		r.AcceptRate = 0
		r.ESS = 0
		r.Clamped = 0
		r.Scales = nil
		r.Memory = 0

		cand := s.method.Propose(r)
		u := s.eval(r, cand)
		if err := s.method.Update(r, cand, u); err != nil {
			return hist, err
		}
		r.Clamped += r.Pop.Normalize()

		if err := s.snapshot(runID, &hist, r, t+1); err != nil {
			return hist, err
		}
	}
	return hist, nil
}

// RunRepeat executes runs independent repetitions of iters iterations each,
// every repetition starting from a fresh copy of the initial population,
// and returns one history per repetition.
func (s *Solver) RunRepeat(ctx context.Context, iters, runs int) ([]History, error) {
	if runs <= 0 {
		return nil, ConfigErrf("run count %v <= 0", runs)
	}
	hists := make([]History, 0, runs)
	for i := 0; i < runs; i++ {
		h, err := s.Run(ctx, iters)
		if err != nil {
			return hists, err
		}
		hists = append(hists, h)
	}
	return hists, nil
}

// eval computes the raw potential of every row of x.  NaN values are
// clamped to +Inf (infeasible) and counted; a bad particle is contained,
// never propagated.
func (s *Solver) eval(r *Run, x *mat.Dense) []float64 {
	u := s.target.Potential(x)
	for i, v := range u {
		if math.IsNaN(v) {
			u[i] = math.Inf(1)
			r.Clamped++
		}
	}
	if s.elite != nil {
		for i, v := range u {
			if !math.IsInf(v, 1) {
				s.elite.Add(x.RawRowView(i), v)
			}
		}
	}
	return u
}

func (s *Solver) snapshot(runID int, hist *History, r *Run, iter int) error {
	ess := r.ESS
	if ess == 0 {
		ess = r.Pop.ESS()
	}
	snap := &Snapshot{
		Iter:    iter,
		Beta:    r.Beta,
		X:       mat.DenseCopyOf(r.Pop.X),
		LogW:    append([]float64{}, r.Pop.LogW...),
		U:       append([]float64{}, r.Pop.U...),
		Accept:  r.AcceptRate,
		ESS:     ess,
		Clamped: r.Clamped,
		Mean:    r.Pop.Mean(),
		Std:     r.Pop.Std(),
		Scales:  append([]float64(nil), r.Scales...),
		Memory:  r.Memory,
	}
	*hist = append(*hist, snap)
	if s.rec != nil {
		return s.rec.record(runID, snap)
	}
	return nil
}
