// Command monaco runs one of the population samplers against a toy target
// and prints per-iteration convergence statistics.  With -db, every
// iteration's particles and summary row are also mirrored into a sqlite
// database for offline diagnostics.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	_ "github.com/mxk/go-sqlite/sqlite3"
	"golang.org/x/exp/rand"

	"github.com/antoinediez/monaco"
	"github.com/antoinediez/monaco/anneal"
	"github.com/antoinediez/monaco/bench"
	"github.com/antoinediez/monaco/cmc"
	"github.com/antoinediez/monaco/kernel"
	"github.com/antoinediez/monaco/npais"
	"github.com/antoinediez/monaco/pmh"
	"github.com/antoinediez/monaco/space"
)

var (
	alg       = flag.String("alg", "cmc", "sampler: pmh, cmc, moka, kids, moka-kids, npais")
	npart     = flag.Int("n", 1000, "population size")
	dim       = flag.Int("dim", 2, "space dimension")
	iters     = flag.Int("iters", 20, "iterations per run")
	runs      = flag.Int("runs", 1, "independent repetitions")
	annealLen = flag.Int("anneal", 5, "annealing length (0 disables)")
	inner     = flag.Int("inner", 30, "deconvolution inner iterations (kids variants)")
	modes     = flag.Int("modes", 5, "number of Gaussian modes in the target")
	scales    = flag.String("scales", "0.001,0.003,0.01,0.03,0.1,0.3", "proposal radii")
	seed      = flag.Uint64("seed", 1, "random seed")
	dbpath    = flag.String("db", "", "sqlite file to record iterations into")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	sp := space.Unit(*dim)
	rng := rand.New(rand.NewSource(*seed))
	target := bench.RandomMixture(*modes, *dim, rng)
	start := sp.SampleUniform(*npart, rng)

	k, err := kernel.NewBall(sp, parseScales(*scales))
	if err != nil {
		log.Fatal(err)
	}

	var method monaco.Method
	switch *alg {
	case "pmh":
		method = pmh.New(k)
	case "cmc":
		method = cmc.New(k)
	case "moka":
		method = cmc.NewMOKA(k)
	case "kids":
		method = cmc.NewKIDS(k, *inner)
	case "moka-kids":
		method = cmc.NewMOKAKIDS(k, *inner)
	case "npais":
		q0, err := npais.NewUniform(sp, sp.Volume())
		if err != nil {
			log.Fatal(err)
		}
		method = npais.New(k, q0, *npart)
	default:
		log.Fatalf("unknown sampler %q", *alg)
	}

	opts := []monaco.Option{monaco.Rng(rng), monaco.TrackElite(5)}
	if *dbpath != "" {
		db, err := sql.Open("sqlite3", *dbpath)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		opts = append(opts, monaco.DB(db))
	}

	solv := monaco.New(sp, start, method, anneal.New(*annealLen), opts...).Fit(target)
	hists, err := solv.RunRepeat(context.Background(), *iters, *runs)
	if err != nil {
		log.Fatal(err)
	}

	for r, hist := range hists {
		fmt.Printf("run %v:\n", r)
		for _, snap := range hist {
			fmt.Printf("  iter %2d: beta=%.3f accept=%.3f ess=%.1f mean=%s\n",
				snap.Iter, snap.Beta, snap.Accept, snap.ESS, fmtVec(snap.Mean))
		}
	}

	fmt.Println("best states seen:")
	pos, u := solv.Elite().States()
	for i := range pos {
		fmt.Printf("  U=%.4f at %s\n", u[i], fmtVec(pos[i]))
	}
	fmt.Printf("target mean: %s\n", fmtVec(target.Mean()))
}

func parseScales(s string) []float64 {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			log.Fatalf("bad scale %q: %v", p, err)
		}
		out = append(out, v)
	}
	return out
}

func fmtVec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.3f", x)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
