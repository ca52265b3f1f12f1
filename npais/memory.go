package npais

import "math"

// memory is the append-only arena of past proposal components.  Components
// are never mutated or pruned once recorded; the global weight normalizer
// and the squared-weight total are maintained incrementally in log space so
// that re-normalizing the whole history never requires a rescan.
type memory struct {
	loc  [][]float64
	bw   []float64
	logw []float64

	logTot   float64 // log sum of component weights
	logSqTot float64 // log sum of squared component weights
}

func newMemory() *memory {
	return &memory{
		logTot:   math.Inf(-1),
		logSqTot: math.Inf(-1),
	}
}

func (m *memory) len() int { return len(m.logw) }

func (m *memory) append(loc []float64, bw, logw float64) {
	m.loc = append(m.loc, append([]float64{}, loc...))
	m.bw = append(m.bw, bw)
	m.logw = append(m.logw, logw)
	m.logTot = logAddExp(m.logTot, logw)
	m.logSqTot = logAddExp(m.logSqTot, 2*logw)
}

// probs returns the normalized component weights exp(logw - logTot).
func (m *memory) probs() []float64 {
	p := make([]float64, len(m.logw))
	for i, lw := range m.logw {
		p[i] = math.Exp(lw - m.logTot)
	}
	return p
}

// ess is the effective sample size over the whole memory,
// (sum w)^2 / sum w^2 computed in log space.
func (m *memory) ess() float64 {
	if math.IsInf(m.logTot, -1) {
		return 0
	}
	return math.Exp(2*m.logTot - m.logSqTot)
}

func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}
