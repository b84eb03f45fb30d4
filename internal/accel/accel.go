// Package accel defines the accelerator execution contract used by layers that
// can offload their passes.
//
// A Queue owns device memory and an in-order command stream. Layers upload
// their host buffers, dispatch one Kernel per pass with positional arguments,
// block on Finish and read results back:
//
//	x, _ := q.Upload(input.Data())
//	y, _ := q.Allocate(n)
//	_ = q.Dispatch(kernel, [3]int{outW, outH, batch * outCh}, accel.Buf(x), accel.Buf(y), accel.Int(n))
//	_ = q.Finish()
//	_ = q.Read(y, out)
//
// Implementations:
//   - software: in-process emulated device, portable, used by tests
//   - webgpu: WGSL compute shaders through go-webgpu (Windows)
package accel

import "github.com/pkg/errors"

// Sentinel errors shared by queue implementations.
var (
	ErrClosed        = errors.New("accel: queue is closed")
	ErrForeignBuffer = errors.New("accel: buffer belongs to another queue")
	ErrReleased      = errors.New("accel: buffer already released")
	ErrBadArgument   = errors.New("accel: invalid kernel argument")
	ErrNoKernelCode  = errors.New("accel: kernel has no code for this device")
)

// Buffer is a device allocation of float32 values.
type Buffer interface {
	// Len returns the number of float32 elements.
	Len() int
}

// Queue is an accelerator command queue.
//
// Dispatch is asynchronous with respect to the host; Finish blocks until every
// previously enqueued command has completed. A dispatched kernel always runs to
// completion, there is no cancellation.
type Queue interface {
	// Name identifies the device for logs.
	Name() string

	// Upload copies data into a new device buffer.
	Upload(data []float32) (Buffer, error)

	// Allocate creates a zero-filled device buffer of n elements.
	Allocate(n int) (Buffer, error)

	// Dispatch enqueues one invocation of k over the global work grid.
	// global is {x, y, z}; args are bound positionally.
	Dispatch(k *Kernel, global [3]int, args ...Arg) error

	// Finish blocks until all enqueued work is done and reports the first
	// error raised by it.
	Finish() error

	// Read copies a device buffer into dst after preceding work completes.
	Read(b Buffer, dst []float32) error

	// Free releases a device buffer once preceding work is done with it.
	Free(b Buffer)

	// Close drains the queue and releases the device.
	Close() error
}

// Arg is a positional kernel argument: either a buffer or a 32-bit integer.
type Arg struct {
	buf   Buffer
	value int32
}

// Buf binds a device buffer.
func Buf(b Buffer) Arg {
	return Arg{buf: b}
}

// Int binds an integer scalar.
func Int(v int) Arg {
	return Arg{value: int32(v)} //nolint:gosec // G115: shapes and strides fit in int32.
}

// IsBuffer reports whether the argument is a buffer binding.
func (a Arg) IsBuffer() bool {
	return a.buf != nil
}

// Buffer returns the bound buffer, or nil for scalars.
func (a Arg) Buffer() Buffer {
	return a.buf
}

// Value returns the bound scalar.
func (a Arg) Value() int32 {
	return a.value
}

// FreeAll releases every buffer in bufs on q, skipping nils.
func FreeAll(q Queue, bufs ...Buffer) {
	for _, b := range bufs {
		if b != nil {
			q.Free(b)
		}
	}
}
