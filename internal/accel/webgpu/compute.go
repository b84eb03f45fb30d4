//go:build windows

package webgpu

import (
	"encoding/binary"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

// pipeline returns the cached compute pipeline for a kernel variant,
// compiling its WGSL source on first use.
func (q *Queue) pipeline(name, source string) *wgpu.ComputePipeline {
	q.mu.RLock()
	if p, ok := q.pipelines[name]; ok {
		q.mu.RUnlock()
		return p
	}
	q.mu.RUnlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	if p, ok := q.pipelines[name]; ok {
		return p
	}

	shader := q.device.CreateShaderModuleWGSL(source)
	q.shaders[name] = shader

	// Auto layout (nil): bindings are derived from the shader.
	p := q.device.CreateComputePipelineSimple(nil, shader, "main")
	q.pipelines[name] = p
	return p
}

// createBuffer creates a storage buffer initialized with data.
func (q *Queue) createBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := q.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createUniformBuffer packs scalar kernel arguments as consecutive i32 fields.
// Uniform buffers require 16-byte alignment.
func (q *Queue) createUniformBuffer(values []int32) (*wgpu.Buffer, uint64) {
	size := uint64(len(values) * 4)
	alignedSize := (size + 15) &^ 15
	if alignedSize == 0 {
		alignedSize = 16
	}

	data := make([]byte, alignedSize)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(v)) //nolint:gosec // G115: two's complement bit pattern.
	}

	buffer := q.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer, alignedSize
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (q *Queue) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := q.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := q.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	q.queue.Submit(cmdBuffer)

	// MapAsync blocks until the copy (and all work submitted before it) is done.
	if err := staging.MapAsync(q.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, errors.Wrap(err, "map staging buffer")
	}

	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()

	return result, nil
}

func floatsToBytes(data []float32) []byte {
	if len(data) == 0 {
		return make([]byte, 4) // WebGPU rejects zero-sized bindings
	}
	//nolint:gosec // reinterpretation of a float32 slice, length bounded by len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}

func bytesToFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}
