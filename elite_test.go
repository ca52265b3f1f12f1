package monaco

import (
	"testing"

	"golang.org/x/exp/rand"
)

func TestEliteKeepsBest(t *testing.T) {
	e := NewElite(3)
	rng := rand.New(rand.NewSource(11))

	us := []float64{5, 1, 9, 3, 7, 2, 8}
	for _, u := range us {
		e.Add([]float64{u, rng.Float64()}, u)
	}

	if e.Len() != 3 {
		t.Fatalf("tracker holds %v states, want 3", e.Len())
	}
	pos, u := e.States()
	want := []float64{1, 2, 3}
	for i := range want {
		if u[i] != want[i] {
			t.Errorf("state %v has potential %v, want %v", i, u[i], want[i])
		}
		if pos[i][0] != want[i] {
			t.Errorf("state %v position %v does not match its potential", i, pos[i])
		}
	}
}

func TestEliteCopiesPositions(t *testing.T) {
	e := NewElite(2)
	buf := []float64{1, 2}
	e.Add(buf, 0.5)
	buf[0] = 99

	pos, _ := e.States()
	if pos[0][0] != 1 {
		t.Errorf("tracked position aliased the caller's buffer: %v", pos[0])
	}
}

func TestEliteEmpty(t *testing.T) {
	e := NewElite(5)
	pos, u := e.States()
	if pos != nil || u != nil {
		t.Errorf("empty tracker returned %v / %v", pos, u)
	}
}

func TestEliteDuplicatePotentials(t *testing.T) {
	e := NewElite(2)
	e.Add([]float64{1}, 0.5)
	e.Add([]float64{2}, 0.5)
	e.Add([]float64{3}, 0.5)

	if e.Len() != 2 {
		t.Errorf("tracker holds %v states, want 2", e.Len())
	}
}
