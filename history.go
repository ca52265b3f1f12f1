package monaco

import (
	"database/sql"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	// TblParticles is the name of the sql table that records positions,
	// weights and potentials for every particle at every iteration.
	TblParticles = "monacoparticles"
	// TblIters is the name of the sql table that records per-iteration
	// summary statistics.
	TblIters = "monacoiters"
)

// Snapshot is the per-iteration record appended to History.  Every field is
// populated identically in shape across algorithms so that diagnostics can
// treat all samplers uniformly.
type Snapshot struct {
	// Iter is zero for the initial population and t+1 after iteration t.
	Iter int
	// Beta is the inverse temperature applied during the iteration.
	Beta float64
	// X is a copy of the particle positions, one per row.
	X *mat.Dense
	// LogW is a copy of the normalized log-weights.
	LogW []float64
	// U is a copy of the raw potentials at X.
	U []float64
	// Accept is the population-averaged acceptance statistic.
	Accept float64
	// ESS is the effective sample size of the iteration's weight vector,
	// taken before any resampling step.
	ESS float64
	// Clamped counts particles whose weight or potential was clamped to
	// contain a numerical problem during the iteration.
	Clamped int
	// Mean and Std are the weighted empirical mean and per-dimension
	// standard deviation of the population.
	Mean, Std []float64
	// Scales is the proposal scale-mixture weight vector in effect, nil
	// for kernels with static mixtures.
	Scales []float64
	// Memory is the accumulated proposal-component count for non-Markovian
	// methods, zero otherwise.
	Memory int
}

// History is the ordered, append-only record of a single run.  It is the
// only artifact the samplers expose to diagnostics consumers; entries must
// be treated as read-only.
type History []*Snapshot

// Final returns the last snapshot, or nil for an empty history.
func (h History) Final() *Snapshot {
	if len(h) == 0 {
		return nil
	}
	return h[len(h)-1]
}

// ESS returns the effective sample size trajectory.
func (h History) ESS() []float64 {
	v := make([]float64, len(h))
	for i, s := range h {
		v[i] = s.ESS
	}
	return v
}

// Accept returns the acceptance-statistic trajectory.
func (h History) Accept() []float64 {
	v := make([]float64, len(h))
	for i, s := range h {
		v[i] = s.Accept
	}
	return v
}

// recorder mirrors History into a pair of sql tables, one row per particle
// per iteration plus one summary row per iteration.
type recorder struct {
	db   *sql.DB
	dims int
}

func newRecorder(db *sql.DB, dims int) (*recorder, error) {
	r := &recorder{db: db, dims: dims}

	s := "CREATE TABLE IF NOT EXISTS " + TblParticles +
		" (run INTEGER, iter INTEGER, particle INTEGER, logw REAL, u REAL"
	s += r.xdbsql("define")
	s += ");"
	if _, err := db.Exec(s); err != nil {
		return nil, err
	}

	s = "CREATE TABLE IF NOT EXISTS " + TblIters +
		" (run INTEGER, iter INTEGER, beta REAL, accept REAL, ess REAL, clamped INTEGER, memory INTEGER);"
	if _, err := db.Exec(s); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *recorder) xdbsql(op string) string {
	s := ""
	for i := 0; i < r.dims; i++ {
		switch op {
		case "?":
			s += ",?"
		case "define":
			s += fmt.Sprintf(",x%v REAL", i)
		case "x":
			s += fmt.Sprintf(",x%v", i)
		default:
			panic("invalid db op " + op)
		}
	}
	return s
}

func pos2iface(pos []float64) []interface{} {
	iface := []interface{}{}
	for _, v := range pos {
		iface = append(iface, v)
	}
	return iface
}

func (r *recorder) record(run int, snap *Snapshot) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	// no-op once Commit has run
	defer tx.Rollback()

	s := "INSERT INTO " + TblParticles + " (run,iter,particle,logw,u" + r.xdbsql("x") +
		") VALUES (?,?,?,?,?" + r.xdbsql("?") + ");"
	n, _ := snap.X.Dims()
	for i := 0; i < n; i++ {
		args := []interface{}{run, snap.Iter, i, snap.LogW[i], snap.U[i]}
		args = append(args, pos2iface(snap.X.RawRowView(i))...)
		if _, err := tx.Exec(s, args...); err != nil {
			return err
		}
	}

	s = "INSERT INTO " + TblIters + " (run,iter,beta,accept,ess,clamped,memory) VALUES (?,?,?,?,?,?,?);"
	if _, err := tx.Exec(s, run, snap.Iter, snap.Beta, snap.Accept, snap.ESS, snap.Clamped, snap.Memory); err != nil {
		return err
	}
	return tx.Commit()
}
