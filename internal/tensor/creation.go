package tensor

// Zeros creates a single-sample tensor filled with zeros.
//
// Example:
//
//	t := tensor.Zeros(3, 4)
func Zeros(shape ...int) *Tensor {
	return ZerosBatch(1, shape...)
}

// ZerosBatch creates a zero tensor holding batch samples of shape.
func ZerosBatch(batch int, shape ...int) *Tensor {
	s := Shape(shape)
	if err := checkLayout(s.NumElements()*batch, s, batch); err != nil {
		panic(err)
	}
	return newTensor(make([]float32, s.NumElements()*batch), s, batch)
}

// Ones creates a single-sample tensor filled with ones.
func Ones(shape ...int) *Tensor {
	return Full(1, shape...)
}

// Full creates a single-sample tensor filled with value.
func Full(value float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	t.Fill(value)
	return t
}

// ZerosLike creates a zero tensor with the same shape and batch count as t.
func ZerosLike(t *Tensor) *Tensor {
	return newTensor(make([]float32, len(t.data)), t.shape, t.batch)
}

// OnesLike creates a tensor of ones with the same shape and batch count as t.
func OnesLike(t *Tensor) *Tensor {
	out := ZerosLike(t)
	out.Fill(1)
	return out
}
