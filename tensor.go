package surrogate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Tensor is a dense float64 array with one or more dimensions, backed by a
// gorgonia tensor. Candidates use the layout (*T, Q, D): any number of
// leading batch dimensions, Q points per batch and D features per point.
//
// Tensors are never empty: every dimension is at least one.
type Tensor struct {
	dense *tensor.Dense
}

// NewTensor copies data into a tensor of the given shape, casting every
// element to float64.
//
// Parameters:
//   - data: Elements in row-major order
//   - shape: The dimensions, each at least one
//
// Returns:
//   - ErrInvalidInput if the shape is empty, has a dimension below one, or
//     does not hold exactly len(data) elements.
//
// Usage example:
//
//	// 4 batches of 3 points in 2D.
//	candidates, err := NewTensor(data, 4, 3, 2)
func NewTensor[T Number](data []T, shape ...int) (*Tensor, error) {
	if err := checkShape(shape, len(data)); err != nil {
		return nil, err
	}

	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}

	return wrap(out, shape...), nil
}

// FromDense copies a float64 gorgonia tensor, materialising views.
func FromDense(d *tensor.Dense) (*Tensor, error) {
	if d == nil || d.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("%w: want a float64 tensor", ErrInvalidInput)
	}

	m, ok := d.Materialize().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("%w: cannot materialise tensor of shape %v", ErrInvalidInput, d.Shape())
	}

	shape := d.Shape()

	data := m.Float64s()
	if len(data) < shape.TotalSize() {
		return nil, fmt.Errorf("%w: tensor of shape %v holds %d elements", ErrInvalidInput, shape, len(data))
	}

	return NewTensor(data[:shape.TotalSize()], shape...)
}

// FromRows converts rows of equal length into a float64 matrix.
func FromRows[T Number](rows [][]T) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidInput)
	}

	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)

	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidInput, i, len(row), cols)
		}

		for _, v := range row {
			data = append(data, float64(v))
		}
	}

	return mat.NewDense(len(rows), cols, data), nil
}

// wrap builds a tensor over data without copying. The shape must be valid.
func wrap(data []float64, shape ...int) *Tensor {
	return &Tensor{dense: tensor.New(
		tensor.WithShape(append([]int(nil), shape...)...),
		tensor.WithBacking(data),
	)}
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.dense.Shape()...)
}

// Dims returns the number of dimensions.
func (t *Tensor) Dims() int {
	return t.dense.Dims()
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return t.dense.Shape().TotalSize()
}

// Data returns a copy of the elements in row-major order.
func (t *Tensor) Data() []float64 {
	return append([]float64(nil), t.values()...)
}

// At returns the element at the given index. It panics on an index that
// does not address an element.
func (t *Tensor) At(idx ...int) float64 {
	shape := t.dense.Shape()
	if len(idx) != len(shape) {
		panic(fmt.Sprintf("surrogate: index %v for shape %v", idx, shape))
	}

	for i, v := range idx {
		if v < 0 || v >= shape[i] {
			panic(fmt.Sprintf("surrogate: index %v out of range for shape %v", idx, shape))
		}
	}

	v, err := t.dense.At(idx...)
	if err != nil {
		panic(fmt.Sprintf("surrogate: index %v for shape %v: %v", idx, t.Shape(), err))
	}

	return v.(float64)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{dense: t.dense.Clone().(*tensor.Dense)}
}

// Reshape returns a tensor with the same elements and a new shape. The
// result shares its data with t.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if err := checkShape(shape, t.Len()); err != nil {
		return nil, fmt.Errorf("cannot reshape %v: %w", t.Shape(), err)
	}

	d := t.dense.ShallowClone()
	if err := d.Reshape(shape...); err != nil {
		return nil, fmt.Errorf("%w: cannot reshape %v to %v: %v", ErrInvalidInput, t.Shape(), shape, err)
	}

	return &Tensor{dense: d}, nil
}

// Matrix copies a two-dimensional tensor into a matrix.
func (t *Tensor) Matrix() (*mat.Dense, error) {
	shape := t.Shape()
	if len(shape) != 2 {
		return nil, &ShapeError{Op: "Matrix", Shape: shape, Want: "(rows, cols)"}
	}

	return mat.NewDense(shape[0], shape[1], t.Data()), nil
}

// Dense returns a copy of the underlying gorgonia tensor.
func (t *Tensor) Dense() *tensor.Dense {
	return t.dense.Clone().(*tensor.Dense)
}

// empty reports whether t is nil or was never constructed.
func (t *Tensor) empty() bool {
	return t == nil || t.dense == nil
}

// values is the backing slice, shared with the tensor.
func (t *Tensor) values() []float64 {
	return t.dense.Float64s()[:t.Len()]
}

// element copies the i-th (rows, cols) matrix of a three-dimensional tensor.
func (t *Tensor) element(i, rows, cols int) (*mat.Dense, error) {
	view, err := t.dense.Slice(tensor.S(i))
	if err != nil {
		return nil, fmt.Errorf("%w: batch element %d of %v: %v", ErrInvalidInput, i, t.Shape(), err)
	}

	m, ok := view.Materialize().(*tensor.Dense)
	if !ok || len(m.Float64s()) < rows*cols {
		return nil, fmt.Errorf("%w: batch element %d of %v", ErrUnsupportedShape, i, t.Shape())
	}

	return mat.NewDense(rows, cols, append([]float64(nil), m.Float64s()[:rows*cols]...)), nil
}

// apply returns a new tensor with fn applied to every element.
func (t *Tensor) apply(fn func(float64) float64) (*Tensor, error) {
	out, err := t.dense.Apply(fn)
	if err != nil {
		return nil, err
	}

	d, ok := out.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected tensor %T", ErrUnsupportedShape, out)
	}

	return &Tensor{dense: d}, nil
}

// checkShape validates that shape is non-empty, has no dimension below one
// and holds n elements.
func checkShape(shape []int, n int) error {
	if len(shape) == 0 {
		return fmt.Errorf("%w: no dimensions", ErrInvalidInput)
	}

	size := 1
	for _, d := range shape {
		if d < 1 {
			return fmt.Errorf("%w: empty dimension in shape %v", ErrInvalidInput, shape)
		}

		size *= d
	}

	if size != n {
		return fmt.Errorf("%w: %d elements do not fill shape %v", ErrInvalidInput, n, shape)
	}

	return nil
}
