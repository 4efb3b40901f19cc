package gp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

var sqrt5 = math.Sqrt(5)

// matern52 evaluates the Matérn 5/2 kernel with one lengthscale per input
// dimension (ARD):
//
//	r = sqrt(sum(((x1 - x2) / l)^2))
//	k(x1, x2) = (1 + sqrt(5) r + 5/3 r^2) exp(-sqrt(5) r)
func matern52(x1, x2, lengthscales []float64) float64 {
	var sumSq float64
	for i := range x1 {
		d := (x1[i] - x2[i]) / lengthscales[i]
		sumSq += d * d
	}

	r := math.Sqrt(sumSq)

	return (1 + sqrt5*r + 5.0/3.0*sumSq) * math.Exp(-sqrt5*r)
}

// gram fills the symmetric train/train kernel matrix scaled by outputscale.
func gram(x *mat.Dense, h Hyperparameters) *mat.SymDense {
	n, _ := x.Dims()
	k := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		xi := x.RawRowView(i)
		for j := i; j < n; j++ {
			k.SetSym(i, j, h.Outputscale*matern52(xi, x.RawRowView(j), h.Lengthscales))
		}
	}

	return k
}

// cross fills the (rows(a), rows(b)) kernel matrix scaled by outputscale.
func cross(a, b *mat.Dense, h Hyperparameters) *mat.Dense {
	na, _ := a.Dims()
	nb, _ := b.Dims()
	k := mat.NewDense(na, nb, nil)

	for i := 0; i < na; i++ {
		ai := a.RawRowView(i)
		for j := 0; j < nb; j++ {
			k.Set(i, j, h.Outputscale*matern52(ai, b.RawRowView(j), h.Lengthscales))
		}
	}

	return k
}
