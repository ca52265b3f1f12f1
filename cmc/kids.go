package cmc

import (
	"gonum.org/v1/gonum/mat"

	"github.com/antoinediez/monaco/kernel"
)

// deconvolve sharpens the weight vector w over the particle cloud x with
// inner Richardson-Lucy iterations.  Sampling through a finite-bandwidth
// kernel estimates the target convolved with that kernel; the iteration
//
//	w <- w * observed / (K (*) w)
//
// with K the mixture kernel matrix over the cloud inverts the blur while
// keeping every entry non-negative.  Each iterate is renormalized to sum to
// one; entries whose blurred estimate degenerates to zero are clamped and
// counted.
//
// See Richardson, "Bayesian-based iterative method of image restoration",
// J. Opt. Soc. Am. 62 (1972), and Lucy, "An iterative technique for the
// rectification of observed distributions", Astron. J. 79 (1974).
func deconvolve(k *kernel.Ball, x *mat.Dense, w []float64, inner int) (out []float64, clamped int) {
	n := len(w)

	obs := make([]float64, n)
	tot := 0.0
	for _, v := range w {
		tot += v
	}
	if tot == 0 {
		return append([]float64{}, w...), 0
	}
	for i, v := range w {
		obs[i] = v / tot
	}

	K := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			K.Set(i, j, k.Density(x.RawRowView(i), x.RawRowView(j)))
		}
	}

	est := append([]float64{}, obs...)
	blur := mat.NewVecDense(n, nil)
	for it := 0; it < inner; it++ {
		blur.MulVec(K, mat.NewVecDense(n, est))
		sum := 0.0
		for i := range est {
			b := blur.AtVec(i)
			if b <= 0 {
				if est[i] != 0 {
					clamped++
				}
				est[i] = 0
				continue
			}
			est[i] *= obs[i] / b
			sum += est[i]
		}
		if sum == 0 {
			// deconvolution collapsed; fall back to the observed weights
			return obs, clamped + n
		}
		for i := range est {
			est[i] /= sum
		}
	}
	return est, clamped
}
