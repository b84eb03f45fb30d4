package nn_test

import (
	"bytes"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strata/internal/accel/software"
	"github.com/born-ml/strata/internal/nn"
	"github.com/born-ml/strata/internal/parallel"
	"github.com/born-ml/strata/internal/tensor"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newSoftwareQueue(t *testing.T) *software.Queue {
	t.Helper()
	q := software.New(software.Config{Workers: 4, Logger: quiet})
	t.Cleanup(func() { require.NoError(t, q.Close()) })
	return q
}

func TestDeconvolution2D_Golden(t *testing.T) {
	x, err := tensor.New([]float32{1, 2, 3, 4}, tensor.Shape{1, 2, 2}, 1)
	require.NoError(t, err)
	want := []float32{
		1, 3, 2,
		4, 10, 6,
		3, 7, 4,
	}

	for _, tc := range []struct {
		name  string
		accel bool
	}{
		{"cpu", false},
		{"software accelerator", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := nn.Deconvolution2DConfig{
				InChannels:  1,
				OutChannels: 1,
				KernelSize:  2,
				NoBias:      true,
				InitialW:    []float32{1, 1, 1, 1},
				Logger:      quiet,
			}
			if tc.accel {
				cfg.Accelerator = newSoftwareQueue(t)
			}
			d, err := nn.NewDeconvolution2D(cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.accel, d.Offloaded())

			y, _, err := d.Forward(x)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{1, 3, 3}, y.Shape())
			assert.Equal(t, want, y.Data())
		})
	}
}

func TestDeconvolution2D_OutputShape(t *testing.T) {
	tests := []struct {
		h, w, k, stride, trim int
		wantH, wantW          int
	}{
		{h: 2, w: 2, k: 2, stride: 1, trim: 0, wantH: 3, wantW: 3},
		{h: 4, w: 4, k: 4, stride: 2, trim: 1, wantH: 8, wantW: 8},
		{h: 3, w: 5, k: 3, stride: 2, trim: 0, wantH: 7, wantW: 11},
		{h: 1, w: 1, k: 5, stride: 3, trim: 2, wantH: 1, wantW: 1},
	}

	for _, tt := range tests {
		d, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
			InChannels: 2, OutChannels: 3, KernelSize: tt.k, Stride: tt.stride, Trim: tt.trim, Logger: quiet,
		})
		require.NoError(t, err)

		y, _, err := d.Forward(tensor.ZerosBatch(2, 2, tt.h, tt.w))
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{3, tt.wantH, tt.wantW}, y.Shape(), "%+v", tt)
		assert.Equal(t, 2, y.BatchCount())
	}
}

func TestDeconvolution2D_Errors(t *testing.T) {
	_, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{InChannels: 1, OutChannels: 1, KernelSize: 0})
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)

	_, err = nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 1, OutChannels: 2, KernelSize: 2, InitialW: []float32{1, 2, 3},
	})
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)

	_, err = nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 1, OutChannels: 2, KernelSize: 1, InitialB: []float32{1},
	})
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)

	d, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 1, OutChannels: 1, KernelSize: 2, Trim: 2, Logger: quiet,
	})
	require.NoError(t, err)

	// (1-1)*1 + 2 - 4 < 0
	_, _, err = d.Forward(tensor.Zeros(1, 1, 1))
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)

	_, _, err = d.Forward(tensor.Zeros(2, 4, 4))
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)
}

// noKernel is an activation that only exists on the host.
type noKernel struct{ nn.ReLU }

func (noKernel) Name() string         { return "host_only" }
func (noKernel) KernelSource() string { return "" }

func TestDeconvolution2D_AcceleratorRejectsHostOnlyActivation(t *testing.T) {
	cfg := nn.Deconvolution2DConfig{
		InChannels: 1, OutChannels: 1, KernelSize: 2,
		Activation: noKernel{},
		Logger:     quiet,
	}
	_, err := nn.NewDeconvolution2D(cfg)
	require.NoError(t, err, "cpu path accepts any activation")

	cfg.Accelerator = newSoftwareQueue(t)
	_, err = nn.NewDeconvolution2D(cfg)
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)
}

func TestDeconvolution2D_LogsOffload(t *testing.T) {
	var buf bytes.Buffer
	_, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 1, OutChannels: 1, KernelSize: 2,
		Accelerator: newSoftwareQueue(t),
		Logger:      slog.New(slog.NewTextHandler(&buf, nil)),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "offloading deconvolution2d to accelerator")
	assert.Contains(t, buf.String(), "device=software")
}

func TestDeconvolution2D_Gradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for _, tc := range []struct {
		name        string
		k, s, trim  int
		act         nn.Activation
		noBias      bool
		inH, inW    int
		inCh, outCh int
		batch       int
	}{
		{name: "stride1", k: 2, s: 1, inH: 3, inW: 3, inCh: 1, outCh: 2, batch: 1},
		{name: "stride2_trim1_tanh", k: 3, s: 2, trim: 1, act: nn.Tanh{}, inH: 3, inW: 2, inCh: 2, outCh: 3, batch: 2},
		{name: "sigmoid_nobias", k: 2, s: 2, act: nn.Sigmoid{}, noBias: true, inH: 2, inW: 3, inCh: 2, outCh: 1, batch: 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
				InChannels:  tc.inCh,
				OutChannels: tc.outCh,
				KernelSize:  tc.k,
				Stride:      tc.s,
				Trim:        tc.trim,
				NoBias:      tc.noBias,
				Activation:  tc.act,
				Initializer: nn.NewXavierUniform(3),
				Logger:      quiet,
			})
			require.NoError(t, err)
			if !tc.noBias {
				copy(d.Bias.Data.Data(), randomData(rng, tc.outCh))
			}

			x := randomTensor(t, rng, tensor.Shape{tc.inCh, tc.inH, tc.inW}, tc.batch)
			checkGradients(t, d, x, rng)
		})
	}
}

func TestDeconvolution2D_AcceleratorMatchesCPU(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	const inCh, outCh, k = 3, 2, 4
	w := randomData(rng, outCh*inCh*k*k)
	b := randomData(rng, outCh)

	build := func(withAccel bool) *nn.Deconvolution2D {
		cfg := nn.Deconvolution2DConfig{
			InChannels: inCh, OutChannels: outCh, KernelSize: k, Stride: 2, Trim: 1,
			InitialW:   w,
			InitialB:   b,
			Activation: nn.LeakyReLU{Slope: 0.2},
			Logger:     quiet,
		}
		if withAccel {
			cfg.Accelerator = newSoftwareQueue(t)
		}
		d, err := nn.NewDeconvolution2D(cfg)
		require.NoError(t, err)
		return d
	}
	cpu, acc := build(false), build(true)

	x := randomTensor(t, rng, tensor.Shape{inCh, 5, 4}, 2)

	yc, ctxC, err := cpu.Forward(x)
	require.NoError(t, err)
	ya, ctxA, err := acc.Forward(x)
	require.NoError(t, err)
	require.True(t, yc.SameLayout(ya))
	assertAllClose(t, yc.Data(), ya.Data(), 1e-5)

	gy := randomTensor(t, rng, yc.Shape(), yc.BatchCount())

	// Two backward rounds: the second checks accumulation on both paths.
	for round := 0; round < 2; round++ {
		gxc, err := cpu.Backward(ctxC, gy)
		require.NoError(t, err)
		gxa, err := acc.Backward(ctxA, gy)
		require.NoError(t, err)

		assertAllClose(t, gxc.Data(), gxa.Data(), 1e-5)
		assertAllClose(t, cpu.Weight.Grad.Data(), acc.Weight.Grad.Data(), 1e-5)
		assertAllClose(t, cpu.Bias.Grad.Data(), acc.Bias.Grad.Data(), 1e-5)

		_, ctxC, err = cpu.Forward(x)
		require.NoError(t, err)
		_, ctxA, err = acc.Forward(x)
		require.NoError(t, err)
	}
}

func TestDeconvolution2D_ParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	w := randomData(rng, 4*3*3*3)

	par := parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}
	serial, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 3, OutChannels: 4, KernelSize: 3, Stride: 2, InitialW: w, Logger: quiet,
	})
	require.NoError(t, err)
	parallelLayer, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 3, OutChannels: 4, KernelSize: 3, Stride: 2, InitialW: w, Parallel: &par, Logger: quiet,
	})
	require.NoError(t, err)

	x := randomTensor(t, rng, tensor.Shape{3, 4, 4}, 3)
	ys, _, err := serial.Forward(x)
	require.NoError(t, err)
	yp, _, err := parallelLayer.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, ys.Data(), yp.Data())
}

func TestDeconvolution2D_GradientsAccumulate(t *testing.T) {
	d, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 1, OutChannels: 1, KernelSize: 2,
		InitialW: []float32{1, 1, 1, 1}, Logger: quiet,
	})
	require.NoError(t, err)

	x, err := tensor.New([]float32{1, 2, 3, 4}, tensor.Shape{1, 2, 2}, 1)
	require.NoError(t, err)
	gy := tensor.Ones(1, 3, 3)

	for i := 0; i < 2; i++ {
		_, ctx, err := d.Forward(x)
		require.NoError(t, err)
		gx, err := d.Backward(ctx, gy)
		require.NoError(t, err)
		// Every input pixel feeds 4 outputs through weights of 1.
		assert.Equal(t, []float32{4, 4, 4, 4}, gx.Data())
	}

	// Each weight sees every input once per pass: 2 * (1+2+3+4).
	assert.Equal(t, []float32{20, 20, 20, 20}, d.Weight.Grad.Data())
	assert.Equal(t, []float32{18}, d.Bias.Grad.Data())
}

func TestDeconvolution2D_ContextMisuse(t *testing.T) {
	d, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 1, OutChannels: 1, KernelSize: 2, Logger: quiet,
	})
	require.NoError(t, err)

	_, err = d.Backward(nil, tensor.Zeros(1, 3, 3))
	assert.ErrorIs(t, err, nn.ErrNoForward)

	y, ctx, err := d.Forward(tensor.Zeros(1, 2, 2))
	require.NoError(t, err)
	gy := tensor.ZerosLike(y)

	_, err = d.Backward(ctx, gy)
	require.NoError(t, err)
	assert.True(t, ctx.Consumed())

	_, err = d.Backward(ctx, gy)
	assert.ErrorIs(t, err, nn.ErrContextConsumed)

	other, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 1, OutChannels: 1, KernelSize: 2, Logger: quiet,
	})
	require.NoError(t, err)
	_, ctx, err = d.Forward(tensor.Zeros(1, 2, 2))
	require.NoError(t, err)
	_, err = other.Backward(ctx, gy)
	assert.ErrorIs(t, err, nn.ErrForeignContext)

	_, err = d.Backward(ctx, tensor.Zeros(1, 2, 2))
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)
	assert.False(t, ctx.Consumed(), "a rejected gradient leaves the context usable")

	_, err = d.Backward(ctx, nil)
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)

	_, err = d.Backward(ctx, gy)
	require.NoError(t, err, "retry with the right gradient")
	assert.True(t, ctx.Consumed())
}

// doubled reports the same name as ReLU but scales its input.
type doubled struct{}

func (doubled) Name() string                   { return "relu" }
func (doubled) Forward(x float32) float32      { return 2 * x }
func (doubled) Backward(gy, _ float32) float32 { return 2 * gy }
func (doubled) KernelSource() string {
	return `fn activate(x: f32) -> f32 {
    return 2.0 * x;
}`
}

func TestDeconvolution2D_AcceleratorKernelsFollowActivation(t *testing.T) {
	q := newSoftwareQueue(t)
	x, err := tensor.New([]float32{-1, -2, -3, -4}, tensor.Shape{1, 2, 2}, 1)
	require.NoError(t, err)

	build := func(act nn.Activation, offload bool) *nn.Deconvolution2D {
		cfg := nn.Deconvolution2DConfig{
			InChannels: 1, OutChannels: 1, KernelSize: 2, NoBias: true,
			InitialW:   []float32{1, 1, 1, 1},
			Activation: act,
			Logger:     quiet,
		}
		if offload {
			cfg.Accelerator = q
		}
		d, err := nn.NewDeconvolution2D(cfg)
		require.NoError(t, err)
		return d
	}

	relu, _, err := build(nn.ReLU{}, true).Forward(x)
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 9), relu.Data())

	cpu, _, err := build(doubled{}, false).Forward(x)
	require.NoError(t, err)
	acc, _, err := build(doubled{}, true).Forward(x)
	require.NoError(t, err)

	assert.Equal(t, cpu.Data(), acc.Data())
	for i, v := range acc.Data() {
		assert.Less(t, v, float32(0), "index %d", i)
	}
}
