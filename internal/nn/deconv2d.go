package nn

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/born-ml/strata/internal/accel"
	"github.com/born-ml/strata/internal/parallel"
	"github.com/born-ml/strata/internal/tensor"
)

// Deconvolution2DConfig configures a transposed convolution.
type Deconvolution2DConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int // square kernel side
	Stride      int // default: 1
	Trim        int // rows/cols cut from each border of the full output (default: 0)
	NoBias      bool

	InitialW []float32 // optional, OutChannels*InChannels*KernelSize*KernelSize values
	InitialB []float32 // optional, OutChannels values

	Activation  Activation  // optional, fused into the output pass
	Initializer Initializer // used when InitialW is nil (default: Xavier)

	// Accelerator selects the offloaded path when non-nil.
	Accelerator accel.Queue
	// Parallel controls the CPU path (default: parallel.Serial()).
	Parallel *parallel.Config
	Logger   *slog.Logger // default: slog.Default()
}

// Deconvolution2D is a transposed 2D convolution ("deconvolution").
//
// Input has shape [InChannels, H, W] per sample, output [OutChannels, H', W']
// with
//
//	H' = (H-1)*Stride + KernelSize - 2*Trim
//
// and the same for W'. Weight has shape [OutChannels, InChannels, k, k] and
// bias [OutChannels].
//
// Example:
//
//	up, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
//	    InChannels:  16,
//	    OutChannels: 8,
//	    KernelSize:  4,
//	    Stride:      2,
//	    Trim:        1,
//	    Activation:  nn.ReLU{},
//	})
//	y, ctx, err := up.Forward(x) // [16, 8, 8] -> [8, 16, 16]
type Deconvolution2D struct {
	inCh, outCh int
	k           int
	stride      int
	trim        int

	Weight *Parameter
	Bias   *Parameter // nil when NoBias

	act     Activation
	queue   accel.Queue
	kernels *deconvKernels
	par     parallel.Config

	mu sync.Mutex // serializes gradient accumulation
}

// NewDeconvolution2D validates cfg and builds the layer.
//
// With an Accelerator the kernel variant for cfg.Activation is resolved here;
// an activation without kernel source is rejected.
func NewDeconvolution2D(cfg Deconvolution2DConfig) (*Deconvolution2D, error) {
	const name = "deconvolution2d"

	if cfg.Stride == 0 {
		cfg.Stride = 1
	}
	if cfg.InChannels <= 0 || cfg.OutChannels <= 0 || cfg.KernelSize <= 0 || cfg.Stride < 0 || cfg.Trim < 0 {
		return nil, fmt.Errorf("%s: channels %d->%d, kernel %d, stride %d, trim %d: %w",
			name, cfg.InChannels, cfg.OutChannels, cfg.KernelSize, cfg.Stride, cfg.Trim, ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	k := cfg.KernelSize
	wShape := tensor.Shape{cfg.OutChannels, cfg.InChannels, k, k}
	w, err := initWeights(name, "weight", cfg.InitialW, wShape.NumElements(),
		cfg.InChannels*k*k, cfg.OutChannels*k*k, cfg.Initializer)
	if err != nil {
		return nil, err
	}

	d := &Deconvolution2D{
		inCh:   cfg.InChannels,
		outCh:  cfg.OutChannels,
		k:      k,
		stride: cfg.Stride,
		trim:   cfg.Trim,
		Weight: NewParameter(name+".weight", tensor.MustWrap(w, wShape, 1)),
		act:    cfg.Activation,
		queue:  cfg.Accelerator,
		par:    parallel.Serial(),
	}
	if cfg.Parallel != nil {
		d.par = *cfg.Parallel
	}

	if !cfg.NoBias {
		b, err := initBias(name, cfg.InitialB, cfg.OutChannels)
		if err != nil {
			return nil, err
		}
		d.Bias = NewParameter(name+".bias", tensor.MustWrap(b, tensor.Shape{cfg.OutChannels}, 1))
	} else if cfg.InitialB != nil {
		return nil, fmt.Errorf("%s: initial bias given with NoBias: %w", name, ErrInvalidConfig)
	}

	if d.queue != nil {
		d.kernels, err = deconvVariant(d.act)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		cfg.Logger.Info("offloading deconvolution2d to accelerator",
			"device", d.queue.Name(), "activation", activationName(d.act))
	} else {
		cfg.Logger.Debug("deconvolution2d on cpu", "parallel", d.par.Enabled)
	}
	return d, nil
}

// Name returns "deconvolution2d".
func (d *Deconvolution2D) Name() string {
	return "deconvolution2d"
}

// Parameters returns the weight and, unless disabled, the bias.
func (d *Deconvolution2D) Parameters() []*Parameter {
	if d.Bias == nil {
		return []*Parameter{d.Weight}
	}
	return []*Parameter{d.Weight, d.Bias}
}

// Offloaded reports whether passes run on the accelerator.
func (d *Deconvolution2D) Offloaded() bool {
	return d.queue != nil
}

// OutputSize returns (H', W') for an h×w input.
func (d *Deconvolution2D) OutputSize(h, w int) (int, int) {
	return (h-1)*d.stride + d.k - 2*d.trim, (w-1)*d.stride + d.k - 2*d.trim
}

// deconvGeometry holds the sizes of one pass.
type deconvGeometry struct {
	batch        int
	inCh, outCh  int
	inH, inW     int
	outH, outW   int
	k            int
	stride, trim int
}

func (d *Deconvolution2D) geometry(x *tensor.Tensor) (deconvGeometry, error) {
	s := x.Shape()
	if len(s) != 3 || s[0] != d.inCh {
		return deconvGeometry{}, fmt.Errorf("%s: input shape %v, want [%d, H, W]: %w",
			d.Name(), s, d.inCh, ErrShapeMismatch)
	}
	outH, outW := d.OutputSize(s[1], s[2])
	if outH <= 0 || outW <= 0 {
		return deconvGeometry{}, fmt.Errorf("%s: input %dx%d gives empty output %dx%d: %w",
			d.Name(), s[1], s[2], outH, outW, ErrShapeMismatch)
	}
	return deconvGeometry{
		batch: x.BatchCount(),
		inCh:  d.inCh, outCh: d.outCh,
		inH: s[1], inW: s[2],
		outH: outH, outW: outW,
		k:      d.k,
		stride: d.stride, trim: d.trim,
	}, nil
}

// Forward computes the transposed convolution of x, adds the bias and
// applies the activation.
func (d *Deconvolution2D) Forward(x *tensor.Tensor) (*tensor.Tensor, *Context, error) {
	g, err := d.geometry(x)
	if err != nil {
		return nil, nil, err
	}

	var y []float32
	if d.queue != nil {
		y, err = d.forwardAccel(g, x.Data())
		if err != nil {
			return nil, nil, fmt.Errorf("%s: forward on %s: %w", d.Name(), d.queue.Name(), err)
		}
	} else {
		y = d.forwardCPU(g, x.Data())
	}

	out := tensor.MustWrap(y, tensor.Shape{g.outCh, g.outH, g.outW}, g.batch)
	return out, newContext(d, x, out), nil
}

// Backward accumulates weight and bias gradients and returns the input
// gradient.
func (d *Deconvolution2D) Backward(ctx *Context, gy *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.take(d, gy); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	x, y := ctx.Input(), ctx.Output()
	g, err := d.geometry(x)
	if err != nil {
		return nil, err
	}

	gyAct := d.activationGrad(gy.Data(), y.Data())

	var gx []float32
	if d.queue != nil {
		gx, err = d.backwardAccel(g, x.Data(), gyAct)
		if err != nil {
			return nil, fmt.Errorf("%s: backward on %s: %w", d.Name(), d.queue.Name(), err)
		}
	} else {
		gx = d.backwardCPU(g, x.Data(), gyAct)
	}

	return tensor.MustWrap(gx, x.Shape(), g.batch), nil
}

// activationGrad returns gy corrected by the activation derivative, or gy
// itself without an activation.
func (d *Deconvolution2D) activationGrad(gy, y []float32) []float32 {
	if d.act == nil {
		return gy
	}
	out := make([]float32, len(gy))
	for i := range gy {
		out[i] = d.act.Backward(gy[i], y[i])
	}
	return out
}

// accumulateBias adds the per-channel sum of gy into the bias gradient.
// The caller holds d.mu.
func (d *Deconvolution2D) accumulateBias(g deconvGeometry, gy []float32) {
	if d.Bias == nil {
		return
	}
	gb := d.Bias.Grad.Data()
	plane := g.outH * g.outW
	for b := 0; b < g.batch; b++ {
		for och := 0; och < g.outCh; och++ {
			off := (b*g.outCh + och) * plane
			var sum float32
			for _, v := range gy[off : off+plane] {
				sum += v
			}
			gb[och] += sum
		}
	}
}
