//go:build windows

// Package webgpu implements accel.Queue on a WebGPU device.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Buffers bind positionally: the i-th buffer argument of a dispatch is
// @binding(i) of group 0, and all scalar arguments are packed, in order, into a
// uniform struct of i32 fields bound right after the last buffer.
package webgpu

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/born-ml/strata/internal/accel"
)

// Queue is an accel.Queue backed by a WebGPU device.
type Queue struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	logger   *slog.Logger

	mu        sync.RWMutex
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline

	// Dispatches are encoded immediately and submitted together on Finish.
	pendingMu sync.Mutex
	pending   []*wgpu.CommandBuffer
	closed    bool
}

type buffer struct {
	owner *Queue
	gpu   *wgpu.Buffer
	n     int
}

func (b *buffer) Len() int {
	return b.n
}

// New opens the default high-performance adapter.
// Returns an error if WebGPU is not available or initialization fails.
func New(logger *slog.Logger) (q *Queue, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			q = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request adapter")
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request device")
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	logger.Info("accelerator ready", "device", "webgpu")

	return &Queue{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		logger:    logger.With("device", "webgpu"),
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Name identifies the device.
func (q *Queue) Name() string {
	return "webgpu"
}

// Upload copies data into a new storage buffer.
func (q *Queue) Upload(data []float32) (accel.Buffer, error) {
	if q.isClosed() {
		return nil, errors.WithStack(accel.ErrClosed)
	}
	return &buffer{owner: q, gpu: q.createBuffer(floatsToBytes(data)), n: len(data)}, nil
}

// Allocate creates a zero-filled storage buffer.
func (q *Queue) Allocate(n int) (accel.Buffer, error) {
	if n < 0 {
		return nil, errors.Wrapf(accel.ErrBadArgument, "allocate %d elements", n)
	}
	return q.Upload(make([]float32, n))
}

// Dispatch encodes one compute pass for k. The command buffer is submitted on
// the next Finish or Read.
func (q *Queue) Dispatch(k *accel.Kernel, global [3]int, args ...accel.Arg) error {
	if q.isClosed() {
		return errors.WithStack(accel.ErrClosed)
	}
	if k == nil || k.Source == "" {
		return errors.WithStack(accel.ErrNoKernelCode)
	}
	groups, err := accel.WorkgroupCount(global, k.Workgroup)
	if err != nil {
		return errors.Wrapf(err, "kernel %s", k.Name)
	}

	var (
		entries []wgpu.BindGroupEntry
		scalars []int32
	)
	for i, a := range args {
		if !a.IsBuffer() {
			scalars = append(scalars, a.Value())
			continue
		}
		buf, err := q.own(a.Buffer())
		if err != nil {
			return errors.Wrapf(err, "kernel %s argument %d", k.Name, i)
		}
		//nolint:gosec // G115: binding index and byte size are non-negative.
		entries = append(entries, wgpu.BufferBindingEntry(uint32(len(entries)), buf.gpu, 0, uint64(max(buf.n, 1)*4)))
	}

	var params *wgpu.Buffer
	if len(scalars) > 0 {
		var size uint64
		params, size = q.createUniformBuffer(scalars)
		defer params.Release()
		//nolint:gosec // G115: binding index is non-negative.
		entries = append(entries, wgpu.BufferBindingEntry(uint32(len(entries)), params, 0, size))
	}

	pipeline := q.pipeline(k.Name, k.Source)
	bindGroup := q.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := q.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	pass.End()

	q.logger.Debug("dispatch", "kernel", k.Name, "global", global, "workgroups", groups)

	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	q.pending = append(q.pending, encoder.Finish(nil))
	return nil
}

// Finish submits pending passes and waits for the device to go idle.
func (q *Queue) Finish() error {
	q.flush()
	// Mapping a 4-byte marker buffer waits for everything submitted before it.
	marker, err := q.Allocate(1)
	if err != nil {
		return err
	}
	defer q.Free(marker)
	_, err = q.readBuffer(marker.(*buffer).gpu, 4)
	return err
}

// Read copies b into dst, waiting for preceding passes.
func (q *Queue) Read(b accel.Buffer, dst []float32) error {
	if q.isClosed() {
		return errors.WithStack(accel.ErrClosed)
	}
	buf, err := q.own(b)
	if err != nil {
		return err
	}
	if len(dst) != buf.n {
		return errors.Wrap(accel.ErrBadArgument, fmt.Sprintf("read %d elements into %d", buf.n, len(dst)))
	}
	q.flush()

	data, err := q.readBuffer(buf.gpu, uint64(max(buf.n, 1)*4)) //nolint:gosec // G115: non-negative.
	if err != nil {
		return err
	}
	bytesToFloats(dst, data)
	return nil
}

// Free releases the GPU allocation.
func (q *Queue) Free(b accel.Buffer) {
	if buf, err := q.own(b); err == nil && buf.gpu != nil {
		q.flush()
		buf.gpu.Release()
		buf.gpu = nil
	}
}

// Close releases all WebGPU resources. Closing twice is a no-op.
func (q *Queue) Close() error {
	q.flush()

	q.pendingMu.Lock()
	if q.closed {
		q.pendingMu.Unlock()
		return nil
	}
	q.closed = true
	q.pendingMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.pipelines {
		p.Release()
	}
	for _, s := range q.shaders {
		s.Release()
	}
	q.pipelines = nil
	q.shaders = nil

	q.queue.Release()
	q.device.Release()
	q.adapter.Release()
	q.instance.Release()
	return nil
}

func (q *Queue) flush() {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	if len(q.pending) == 0 {
		return
	}
	q.queue.Submit(q.pending...)
	q.pending = q.pending[:0]
}

func (q *Queue) isClosed() bool {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return q.closed
}

func (q *Queue) own(b accel.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf.owner != q {
		return nil, errors.WithStack(accel.ErrForeignBuffer)
	}
	if buf.gpu == nil {
		return nil, errors.WithStack(accel.ErrReleased)
	}
	return buf, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

func float32frombits(b uint32) float32 {
	return math.Float32frombits(b)
}

var _ accel.Queue = (*Queue)(nil)
