package nn

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/strata/internal/parallel"
	"github.com/born-ml/strata/internal/tensor"
)

// MaxPooling2D applies 2D max pooling over [C, H, W] inputs.
//
// For each window, outputs the maximum value. Padded positions never win:
// every window starts from -MaxFloat32 and only visits in-bounds inputs.
//
// Output size per axis: floor((H - KernelSize + 2*Pad) / Stride) + 1.
//
// Backward routes each output gradient to the first input position, in
// row-major window order, whose value equals the pooled output. Ties go to the
// earliest position; windows that overlap accumulate into shared positions.
//
// Example:
//
//	pool, err := nn.NewMaxPooling2D(2, 2, 0)
//	y, ctx, err := pool.Forward(x) // [C, 28, 28] -> [C, 14, 14]
type MaxPooling2D struct {
	k      int
	stride int
	pad    int
	par    parallel.Config
}

// NewMaxPooling2D creates a max pooling layer.
//
// Parameters:
//   - kernelSize: Size of pooling window (square)
//   - stride: Step between windows (0 means 1)
//   - pad: Virtual border on each side (default 0)
func NewMaxPooling2D(kernelSize, stride, pad int) (*MaxPooling2D, error) {
	if stride == 0 {
		stride = 1
	}
	if kernelSize <= 0 || stride < 0 || pad < 0 || pad >= kernelSize {
		return nil, fmt.Errorf("maxpooling2d: kernel %d, stride %d, pad %d: %w",
			kernelSize, stride, pad, ErrInvalidConfig)
	}
	return &MaxPooling2D{
		k:      kernelSize,
		stride: stride,
		pad:    pad,
		par:    parallel.Serial(),
	}, nil
}

// WithParallel returns the layer configured to split work by cfg.
func (m *MaxPooling2D) WithParallel(cfg parallel.Config) *MaxPooling2D {
	m.par = cfg
	return m
}

// Name returns "maxpooling2d".
func (m *MaxPooling2D) Name() string {
	return "maxpooling2d"
}

// Parameters returns nil (no trainable parameters).
func (m *MaxPooling2D) Parameters() []*Parameter {
	return nil
}

// KernelSize returns the pooling window size.
func (m *MaxPooling2D) KernelSize() int {
	return m.k
}

// Stride returns the pooling stride.
func (m *MaxPooling2D) Stride() int {
	return m.stride
}

// OutputSize returns the pooled size of an h×w input.
func (m *MaxPooling2D) OutputSize(h, w int) (int, int) {
	return (h-m.k+2*m.pad)/m.stride + 1, (w-m.k+2*m.pad)/m.stride + 1
}

// window returns the clamped input range [start, end) covered by output
// position o along an axis of length n.
func (m *MaxPooling2D) window(o, n int) (int, int) {
	start := o*m.stride - m.pad
	return max(start, 0), min(start+m.k, n)
}

func (m *MaxPooling2D) check(x *tensor.Tensor) (c, h, w, outH, outW int, err error) {
	s := x.Shape()
	if len(s) != 3 {
		return 0, 0, 0, 0, 0, fmt.Errorf("%s: input shape %v, want [C, H, W]: %w", m.Name(), s, ErrShapeMismatch)
	}
	c, h, w = s[0], s[1], s[2]
	if h+2*m.pad < m.k || w+2*m.pad < m.k {
		return 0, 0, 0, 0, 0, fmt.Errorf("%s: padded input %dx%d smaller than window %d: %w",
			m.Name(), h+2*m.pad, w+2*m.pad, m.k, ErrShapeMismatch)
	}
	outH, outW = m.OutputSize(h, w)
	return c, h, w, outH, outW, nil
}

// Forward pools every (sample, channel) plane.
func (m *MaxPooling2D) Forward(x *tensor.Tensor) (*tensor.Tensor, *Context, error) {
	c, h, w, outH, outW, err := m.check(x)
	if err != nil {
		return nil, nil, err
	}

	xd := x.Data()
	batch := x.BatchCount()
	y := make([]float32, batch*c*outH*outW)

	parallel.ForBatch(batch, c, func(b, ch int) {
		plane := b*c + ch
		in := xd[plane*h*w:]
		out := y[plane*outH*outW:]
		for oy := 0; oy < outH; oy++ {
			y0, y1 := m.window(oy, h)
			for ox := 0; ox < outW; ox++ {
				x0, x1 := m.window(ox, w)
				best := float32(-math32.MaxFloat32)
				for iy := y0; iy < y1; iy++ {
					for ix := x0; ix < x1; ix++ {
						if v := in[iy*w+ix]; v > best {
							best = v
						}
					}
				}
				out[oy*outW+ox] = best
			}
		}
	}, m.par)

	out := tensor.MustWrap(y, tensor.Shape{c, outH, outW}, batch)
	return out, newContext(m, x, out), nil
}

// Backward routes gy to the first window position matching the pooled value.
func (m *MaxPooling2D) Backward(ctx *Context, gy *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.take(m, gy); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name(), err)
	}
	x, y := ctx.Input(), ctx.Output()
	c, h, w, outH, outW, err := m.check(x)
	if err != nil {
		return nil, err
	}

	xd, yd, gyd := x.Data(), y.Data(), gy.Data()
	gx := make([]float32, len(xd))

	// A plane is owned by one work item, so overlapping windows can add into
	// gx without synchronization.
	parallel.ForBatch(x.BatchCount(), c, func(b, ch int) {
		plane := b*c + ch
		in := xd[plane*h*w:]
		dst := gx[plane*h*w:]
		for oy := 0; oy < outH; oy++ {
			y0, y1 := m.window(oy, h)
			for ox := 0; ox < outW; ox++ {
				x0, x1 := m.window(ox, w)
				o := plane*outH*outW + oy*outW + ox
				if pos := firstMatch(in, w, y0, y1, x0, x1, yd[o]); pos >= 0 {
					dst[pos] += gyd[o]
				}
			}
		}
	}, m.par)

	return tensor.MustWrap(gx, x.Shape(), x.BatchCount()), nil
}

// firstMatch returns the offset of the first element equal to v in the
// window, scanning rows then columns, or -1.
func firstMatch(in []float32, w, y0, y1, x0, x1 int, v float32) int {
	for iy := y0; iy < y1; iy++ {
		for ix := x0; ix < x1; ix++ {
			if in[iy*w+ix] == v {
				return iy*w + ix
			}
		}
	}
	return -1
}
