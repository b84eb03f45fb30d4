// Package tensor implements the flat-buffer numeric container shared by every
// layer and optimizer.
//
// A Tensor owns (or aliases) a contiguous []float32 holding batchCount samples
// of the same Shape, laid out row-major with the batch as the outermost stride.
package tensor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
)

// ErrShapeMismatch is returned when a buffer does not match the requested shape.
var ErrShapeMismatch = errors.New("tensor: buffer length does not match shape")

// Tensor is a fixed-shape container of float32 values.
//
// Invariant: len(data) == shape.NumElements() * batch.
type Tensor struct {
	data    []float32
	shape   Shape
	strides []int
	batch   int
}

// New creates a tensor that owns a copy of data.
//
// Use New when the source buffer may be mutated elsewhere after the call.
func New(data []float32, shape Shape, batch int) (*Tensor, error) {
	if err := checkLayout(len(data), shape, batch); err != nil {
		return nil, err
	}
	owned := make([]float32, len(data))
	copy(owned, data)
	return newTensor(owned, shape, batch), nil
}

// Wrap creates a tensor header around data without copying it.
//
// Use Wrap when ownership of the buffer is handed to the tensor; writes through
// either side are visible to the other.
func Wrap(data []float32, shape Shape, batch int) (*Tensor, error) {
	if err := checkLayout(len(data), shape, batch); err != nil {
		return nil, err
	}
	return newTensor(data, shape, batch), nil
}

// MustWrap is like Wrap but panics on a layout mismatch.
// Intended for buffers whose length was computed from the same shape.
func MustWrap(data []float32, shape Shape, batch int) *Tensor {
	t, err := Wrap(data, shape, batch)
	if err != nil {
		panic(err)
	}
	return t
}

func newTensor(data []float32, shape Shape, batch int) *Tensor {
	return &Tensor{
		data:    data,
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
		batch:   batch,
	}
}

func checkLayout(n int, shape Shape, batch int) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("invalid shape: %w", err)
	}
	if batch < 1 {
		return fmt.Errorf("invalid batch count %d (must be > 0)", batch)
	}
	if want := shape.NumElements() * batch; n != want {
		return fmt.Errorf("%w: shape %v x batch %d requires %d elements, got %d",
			ErrShapeMismatch, shape, batch, want, n)
	}
	return nil
}

// Data returns the underlying buffer.
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Shape returns the per-sample shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// BatchCount returns the number of samples in the buffer.
func (t *Tensor) BatchCount() int {
	return t.batch
}

// Length returns the element count of one sample.
func (t *Tensor) Length() int {
	return t.shape.NumElements()
}

// Size returns the total element count (Length * BatchCount).
func (t *Tensor) Size() int {
	return len(t.data)
}

// Rank returns the number of per-sample dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Index converts (batch, coords...) into the flat offset of the element.
// Panics if the coordinates are out of bounds.
func (t *Tensor) Index(batch int, coords ...int) int {
	if len(coords) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(coords)))
	}
	if batch < 0 || batch >= t.batch {
		panic(fmt.Sprintf("batch index %d out of bounds (batch count %d)", batch, t.batch))
	}

	offset := batch * t.Length()
	for i, idx := range coords {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		offset += idx * t.strides[i]
	}
	return offset
}

// At returns the element at (batch, coords...).
func (t *Tensor) At(batch int, coords ...int) float32 {
	return t.data[t.Index(batch, coords...)]
}

// Set stores value at (batch, coords...).
func (t *Tensor) Set(value float32, batch int, coords ...int) {
	t.data[t.Index(batch, coords...)] = value
}

// Sample returns an aliasing view of sample b.
func (t *Tensor) Sample(b int) []float32 {
	n := t.Length()
	return t.data[b*n : (b+1)*n]
}

// Fill overwrites every element with value.
func (t *Tensor) Fill(value float32) {
	for i := range t.data {
		t.data[i] = value
	}
}

// Zero sets every element to zero.
func (t *Tensor) Zero() {
	clear(t.data)
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return newTensor(data, t.shape, t.batch)
}

// SameLayout reports whether other has the same shape and batch count.
func (t *Tensor) SameLayout(other *Tensor) bool {
	return other != nil && t.batch == other.batch && t.shape.Equal(other.shape)
}

// Dot returns the inner product of two tensors with the same layout.
func (t *Tensor) Dot(other *Tensor) float32 {
	if len(t.data) != len(other.data) {
		panic(fmt.Sprintf("dot: length mismatch %d vs %d", len(t.data), len(other.data)))
	}
	return blas32.Dot(vector(t.data), vector(other.data))
}

// AddScaled performs t += alpha * other in place.
func (t *Tensor) AddScaled(alpha float32, other *Tensor) {
	if len(t.data) != len(other.data) {
		panic(fmt.Sprintf("axpy: length mismatch %d vs %d", len(t.data), len(other.data)))
	}
	blas32.Axpy(alpha, vector(other.data), vector(t.data))
}

// String returns a short description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[float32]%v x %d", t.shape, t.batch)
}

func vector(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Data: data, Inc: 1}
}
