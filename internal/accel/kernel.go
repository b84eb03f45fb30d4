package accel

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/pkg/errors"
)

// HostFunc is the host-side body of a kernel, executed once per work item by
// devices that run on the CPU. It must only write the output elements owned by
// its work item.
type HostFunc func(id [3]int, b Bindings)

// Kernel is one compiled variant of a compute pass.
//
// A kernel carries the code for every device kind it supports: WGSL source for
// GPU queues and a HostFunc for the software queue. Variants (for example one
// per fused activation) are resolved when the owning layer is configured, never
// patched at dispatch time.
type Kernel struct {
	Name      string   // unique per variant, used as pipeline cache key
	Source    string   // WGSL compute shader, entry point "main"
	Workgroup [3]int   // WGSL @workgroup_size
	Host      HostFunc // software implementation
}

// Bindings exposes positional kernel arguments to a HostFunc.
type Bindings struct {
	floats [][]float32
	ints   []int32
}

// NewBindings allocates n argument slots.
func NewBindings(n int) Bindings {
	return Bindings{
		floats: make([][]float32, n),
		ints:   make([]int32, n),
	}
}

// SetFloats binds device memory to slot i.
func (b Bindings) SetFloats(i int, data []float32) {
	b.floats[i] = data
}

// SetInt binds a scalar to slot i.
func (b Bindings) SetInt(i int, v int32) {
	b.ints[i] = v
}

// Floats returns the memory bound to slot i.
func (b Bindings) Floats(i int) []float32 {
	return b.floats[i]
}

// Int returns the scalar bound to slot i.
func (b Bindings) Int(i int) int {
	return int(b.ints[i])
}

// Len returns the number of slots.
func (b Bindings) Len() int {
	return len(b.ints)
}

// Render expands a kernel source template once, at configuration time.
func Render(name, src string, data any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", errors.Wrapf(err, "parse kernel template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render kernel template %q", name)
	}
	return buf.String(), nil
}

// WorkgroupCount returns ceil(global/size) per axis.
func WorkgroupCount(global, size [3]int) ([3]uint32, error) {
	var out [3]uint32
	for i := range global {
		s := size[i]
		if s <= 0 {
			s = 1
		}
		if global[i] < 0 {
			return out, errors.Wrap(ErrBadArgument, fmt.Sprintf("negative global size %v", global))
		}
		out[i] = uint32((global[i] + s - 1) / s) //nolint:gosec // G115: non-negative.
	}
	return out, nil
}
