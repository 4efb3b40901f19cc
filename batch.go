package surrogate

import (
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"
)

// BatchPosterior evaluates the posterior of a single (Q, D) batch of points.
// Joint models return Q means and Q*Q row-major covariances; marginal models
// return Q means and Q variances.
type BatchPosterior func(points *mat.Dense) (mean, covar []float64, err error)

type batchOptions struct {
	workers int
}

// BatchOption configures Batchify.
type BatchOption func(*batchOptions)

// WithBatchWorkers evaluates the batch elements of a joint posterior with up
// to n goroutines. Results keep their order and the first error wins.
func WithBatchWorkers(n int) BatchOption {
	return func(o *batchOptions) {
		o.workers = n
	}
}

// Batchify lifts a posterior that understands one (Q, D) batch to candidates
// with any number of leading batch dimensions.
//
// How it works:
//   - Two-dimensional candidates are passed through as a single batch.
//   - Joint models are evaluated once per batch element, so covariances are
//     never computed across batch elements.
//   - Marginal models are evaluated once on all points stacked into a single
//     (prod(T)*Q, D) matrix, and the results are reshaped to (*T, Q).
//
// Errors from f are returned unchanged and no partial result is produced.
func Batchify(mode PosteriorMode, f BatchPosterior, opts ...BatchOption) func(*Tensor) (mean, covar *Tensor, err error) {
	o := batchOptions{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	return func(candidates *Tensor) (*Tensor, *Tensor, error) {
		if candidates.empty() {
			return nil, nil, fmt.Errorf("%w: empty candidates", ErrInvalidInput)
		}

		shape := candidates.Shape()
		if len(shape) < 2 {
			return nil, nil, &ShapeError{Op: "posterior", Shape: shape, Want: "(*T, Q, D)"}
		}

		batch := shape[:len(shape)-2]
		q, d := shape[len(shape)-2], shape[len(shape)-1]
		n := candidates.Len() / (q * d)

		if mode == PosteriorJoint {
			stacked, err := candidates.Reshape(n, q, d)
			if err != nil {
				return nil, nil, err
			}

			return joint(stacked, f, batch, n, q, d, o.workers)
		}

		flat, err := candidates.Reshape(n*q, d)
		if err != nil {
			return nil, nil, err
		}

		points, err := flat.Matrix()
		if err != nil {
			return nil, nil, err
		}

		mean, variance, err := f(points)
		if err != nil {
			return nil, nil, err
		}

		if len(mean) != n*q || len(variance) != n*q {
			return nil, nil, fmt.Errorf("%w: marginal posterior returned %d/%d values for %d points",
				ErrUnsupportedShape, len(mean), len(variance), n*q)
		}

		out := append(append([]int(nil), batch...), q)

		return wrap(mean, out...), wrap(variance, out...), nil
	}
}

// joint evaluates f on every (Q, D) element of stacked, of shape (N, Q, D).
func joint(stacked *Tensor, f BatchPosterior, batch []int, n, q, d, workers int) (*Tensor, *Tensor, error) {
	mean := make([]float64, n*q)
	covar := make([]float64, n*q*q)

	eval := func(i int) error {
		points, err := stacked.element(i, q, d)
		if err != nil {
			return err
		}

		m, c, err := f(points)
		if err != nil {
			return err
		}

		if len(m) != q || len(c) != q*q {
			return fmt.Errorf("%w: joint posterior returned %d/%d values for a batch of %d",
				ErrUnsupportedShape, len(m), len(c), q)
		}

		copy(mean[i*q:], m)
		copy(covar[i*q*q:], c)

		return nil
	}

	if workers > 1 && n > 1 {
		p := pool.New().WithErrors().WithFirstError().WithMaxGoroutines(workers)
		for i := 0; i < n; i++ {
			p.Go(func() error { return eval(i) })
		}

		if err := p.Wait(); err != nil {
			return nil, nil, err
		}
	} else {
		for i := 0; i < n; i++ {
			if err := eval(i); err != nil {
				return nil, nil, err
			}
		}
	}

	meanShape := append(append([]int(nil), batch...), q)
	covarShape := append(append([]int(nil), batch...), q, q)

	return wrap(mean, meanShape...), wrap(covar, covarShape...), nil
}
