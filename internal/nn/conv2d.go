package nn

import (
	"fmt"
	"sync"

	"github.com/born-ml/strata/internal/parallel"
	"github.com/born-ml/strata/internal/tensor"
)

// Convolution2DConfig configures an ordinary 2D convolution.
type Convolution2DConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int // square kernel side
	Stride      int // default: 1
	Pad         int // zero padding on each border (default: 0)
	NoBias      bool

	InitialW []float32 // optional, OutChannels*InChannels*KernelSize*KernelSize values
	InitialB []float32 // optional, OutChannels values

	Activation  Activation
	Initializer Initializer
	Parallel    *parallel.Config // default: parallel.Serial()
}

// Convolution2D applies a 2D convolution (cross-correlation) over a
// [InChannels, H, W] input.
//
// Output spatial size: (H + 2*Pad - KernelSize) / Stride + 1.
// Weight shape: [OutChannels, InChannels, KernelSize, KernelSize].
//
// Convolution2D runs on the CPU only.
//
// Example:
//
//	conv, err := nn.NewConvolution2D(nn.Convolution2DConfig{
//	    InChannels: 1, OutChannels: 32, KernelSize: 3, Pad: 1,
//	    Activation: nn.ReLU{},
//	})
//	y, ctx, err := conv.Forward(images) // [1, 28, 28] -> [32, 28, 28]
type Convolution2D struct {
	inCh, outCh int
	k           int
	stride, pad int

	Weight *Parameter
	Bias   *Parameter

	act Activation
	par parallel.Config

	mu sync.Mutex
}

// NewConvolution2D validates cfg and builds the layer.
func NewConvolution2D(cfg Convolution2DConfig) (*Convolution2D, error) {
	const name = "convolution2d"

	if cfg.Stride == 0 {
		cfg.Stride = 1
	}
	if cfg.InChannels <= 0 || cfg.OutChannels <= 0 || cfg.KernelSize <= 0 || cfg.Stride < 0 || cfg.Pad < 0 {
		return nil, fmt.Errorf("%s: channels %d->%d, kernel %d, stride %d, pad %d: %w",
			name, cfg.InChannels, cfg.OutChannels, cfg.KernelSize, cfg.Stride, cfg.Pad, ErrInvalidConfig)
	}

	k := cfg.KernelSize
	wShape := tensor.Shape{cfg.OutChannels, cfg.InChannels, k, k}
	w, err := initWeights(name, "weight", cfg.InitialW, wShape.NumElements(),
		cfg.InChannels*k*k, cfg.OutChannels*k*k, cfg.Initializer)
	if err != nil {
		return nil, err
	}

	c := &Convolution2D{
		inCh:   cfg.InChannels,
		outCh:  cfg.OutChannels,
		k:      k,
		stride: cfg.Stride,
		pad:    cfg.Pad,
		Weight: NewParameter(name+".weight", tensor.MustWrap(w, wShape, 1)),
		act:    cfg.Activation,
		par:    parallel.Serial(),
	}
	if cfg.Parallel != nil {
		c.par = *cfg.Parallel
	}
	if !cfg.NoBias {
		b, err := initBias(name, cfg.InitialB, cfg.OutChannels)
		if err != nil {
			return nil, err
		}
		c.Bias = NewParameter(name+".bias", tensor.MustWrap(b, tensor.Shape{cfg.OutChannels}, 1))
	}
	return c, nil
}

// Name returns "convolution2d".
func (c *Convolution2D) Name() string {
	return "convolution2d"
}

// Parameters returns the weight and, unless disabled, the bias.
func (c *Convolution2D) Parameters() []*Parameter {
	if c.Bias == nil {
		return []*Parameter{c.Weight}
	}
	return []*Parameter{c.Weight, c.Bias}
}

// OutputSize returns the output spatial size for an h×w input.
func (c *Convolution2D) OutputSize(h, w int) (int, int) {
	return (h+2*c.pad-c.k)/c.stride + 1, (w+2*c.pad-c.k)/c.stride + 1
}

type convGeometry struct {
	batch       int
	inH, inW    int
	outH, outW  int
	inPlane     int
	outPlane    int
	kPlane      int
	inCh, outCh int
}

func (c *Convolution2D) geometry(x *tensor.Tensor) (convGeometry, error) {
	s := x.Shape()
	if len(s) != 3 || s[0] != c.inCh {
		return convGeometry{}, fmt.Errorf("%s: input shape %v, want [%d, H, W]: %w",
			c.Name(), s, c.inCh, ErrShapeMismatch)
	}
	if s[1]+2*c.pad < c.k || s[2]+2*c.pad < c.k {
		return convGeometry{}, fmt.Errorf("%s: padded input %dx%d smaller than kernel %d: %w",
			c.Name(), s[1]+2*c.pad, s[2]+2*c.pad, c.k, ErrShapeMismatch)
	}
	outH, outW := c.OutputSize(s[1], s[2])
	return convGeometry{
		batch: x.BatchCount(),
		inH:   s[1], inW: s[2],
		outH: outH, outW: outW,
		inPlane:  s[1] * s[2],
		outPlane: outH * outW,
		kPlane:   c.k * c.k,
		inCh:     c.inCh, outCh: c.outCh,
	}, nil
}

// Forward computes the convolution, adds the bias and applies the activation.
func (c *Convolution2D) Forward(x *tensor.Tensor) (*tensor.Tensor, *Context, error) {
	g, err := c.geometry(x)
	if err != nil {
		return nil, nil, err
	}

	xd := x.Data()
	w := c.Weight.Data.Data()
	y := make([]float32, g.batch*g.outCh*g.outPlane)

	parallel.ForBatch(g.batch, g.outCh, func(b, och int) {
		out := y[(b*g.outCh+och)*g.outPlane:]
		for oy := 0; oy < g.outH; oy++ {
			for ox := 0; ox < g.outW; ox++ {
				var sum float32
				for ich := 0; ich < g.inCh; ich++ {
					xc := xd[(b*g.inCh+ich)*g.inPlane:]
					wc := w[(och*g.inCh+ich)*g.kPlane:]
					for ky := 0; ky < c.k; ky++ {
						iy := oy*c.stride + ky - c.pad
						if iy < 0 || iy >= g.inH {
							continue
						}
						for kx := 0; kx < c.k; kx++ {
							ix := ox*c.stride + kx - c.pad
							if ix < 0 || ix >= g.inW {
								continue
							}
							sum += xc[iy*g.inW+ix] * wc[ky*c.k+kx]
						}
					}
				}
				if c.Bias != nil {
					sum += c.Bias.Data.Data()[och]
				}
				if c.act != nil {
					sum = c.act.Forward(sum)
				}
				out[oy*g.outW+ox] = sum
			}
		}
	}, c.par)

	out := tensor.MustWrap(y, tensor.Shape{g.outCh, g.outH, g.outW}, g.batch)
	return out, newContext(c, x, out), nil
}

// Backward accumulates weight and bias gradients and returns the input
// gradient.
func (c *Convolution2D) Backward(ctx *Context, gy *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.take(c, gy); err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}
	x, y := ctx.Input(), ctx.Output()
	g, err := c.geometry(x)
	if err != nil {
		return nil, err
	}

	gyd := gy.Data()
	if c.act != nil {
		yd := y.Data()
		corrected := make([]float32, len(gyd))
		for i := range gyd {
			corrected[i] = c.act.Backward(gyd[i], yd[i])
		}
		gyd = corrected
	}

	xd := x.Data()
	w := c.Weight.Data.Data()

	gw := make([]float32, len(w))
	parallel.For(g.outCh*g.inCh, func(oi int) {
		och, ich := oi/g.inCh, oi%g.inCh
		dst := gw[oi*g.kPlane : (oi+1)*g.kPlane]
		for b := 0; b < g.batch; b++ {
			xc := xd[(b*g.inCh+ich)*g.inPlane:]
			gc := gyd[(b*g.outCh+och)*g.outPlane:]
			for oy := 0; oy < g.outH; oy++ {
				for ox := 0; ox < g.outW; ox++ {
					gv := gc[oy*g.outW+ox]
					for ky := 0; ky < c.k; ky++ {
						iy := oy*c.stride + ky - c.pad
						if iy < 0 || iy >= g.inH {
							continue
						}
						for kx := 0; kx < c.k; kx++ {
							ix := ox*c.stride + kx - c.pad
							if ix < 0 || ix >= g.inW {
								continue
							}
							dst[ky*c.k+kx] += xc[iy*g.inW+ix] * gv
						}
					}
				}
			}
		}
	}, c.par)

	// Each (b, ich) plane of gx is owned by one work item.
	gx := make([]float32, len(xd))
	parallel.ForBatch(g.batch, g.inCh, func(b, ich int) {
		dst := gx[(b*g.inCh+ich)*g.inPlane:]
		for och := 0; och < g.outCh; och++ {
			gc := gyd[(b*g.outCh+och)*g.outPlane:]
			wc := w[(och*g.inCh+ich)*g.kPlane:]
			for oy := 0; oy < g.outH; oy++ {
				for ox := 0; ox < g.outW; ox++ {
					gv := gc[oy*g.outW+ox]
					for ky := 0; ky < c.k; ky++ {
						iy := oy*c.stride + ky - c.pad
						if iy < 0 || iy >= g.inH {
							continue
						}
						for kx := 0; kx < c.k; kx++ {
							ix := ox*c.stride + kx - c.pad
							if ix < 0 || ix >= g.inW {
								continue
							}
							dst[iy*g.inW+ix] += wc[ky*c.k+kx] * gv
						}
					}
				}
			}
		}
	}, c.par)

	c.mu.Lock()
	defer c.mu.Unlock()
	accumulate(c.Weight.Grad, gw)
	if c.Bias != nil {
		gb := c.Bias.Grad.Data()
		for b := 0; b < g.batch; b++ {
			for och := 0; och < g.outCh; och++ {
				for _, v := range gyd[(b*g.outCh+och)*g.outPlane : (b*g.outCh+och+1)*g.outPlane] {
					gb[och] += v
				}
			}
		}
	}

	return tensor.MustWrap(gx, x.Shape(), g.batch), nil
}
