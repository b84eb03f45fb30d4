package nn

import (
	"fmt"
	"strconv"

	"github.com/chewxy/math32"
)

// Activation is an element-wise nonlinearity that layers can fuse into their
// output pass.
//
// Backward is expressed through the forward output y, which is what layers
// cache. KernelSource returns a WGSL snippet defining
//
//	fn activate(x: f32) -> f32
//
// for accelerator kernels; an empty string means the activation can only run
// on the CPU path.
type Activation interface {
	Name() string
	Forward(x float32) float32
	Backward(gy, y float32) float32
	KernelSource() string
}

// identitySource is spliced into kernels built without an activation.
const identitySource = `fn activate(x: f32) -> f32 {
    return x;
}`

// ReLU applies f(x) = max(0, x).
type ReLU struct{}

func (ReLU) Name() string { return "relu" }

func (ReLU) Forward(x float32) float32 {
	if x > 0 {
		return x
	}
	return 0
}

func (ReLU) Backward(gy, y float32) float32 {
	if y > 0 {
		return gy
	}
	return 0
}

func (ReLU) KernelSource() string {
	return `fn activate(x: f32) -> f32 {
    return max(x, 0.0);
}`
}

// LeakyReLU applies f(x) = x for x > 0 and Slope*x otherwise.
// Slope is expected in (0, 1) so the sign of y identifies the branch.
type LeakyReLU struct {
	Slope float32
}

func (l LeakyReLU) Name() string {
	return "leaky_relu_" + strconv.FormatFloat(float64(l.Slope), 'g', -1, 32)
}

func (l LeakyReLU) Forward(x float32) float32 {
	if x > 0 {
		return x
	}
	return l.Slope * x
}

func (l LeakyReLU) Backward(gy, y float32) float32 {
	if y > 0 {
		return gy
	}
	return l.Slope * gy
}

func (l LeakyReLU) KernelSource() string {
	return fmt.Sprintf(`fn activate(x: f32) -> f32 {
    return select(%sf * x, x, x > 0.0);
}`, strconv.FormatFloat(float64(l.Slope), 'e', -1, 32))
}

// Sigmoid applies σ(x) = 1 / (1 + exp(-x)).
type Sigmoid struct{}

func (Sigmoid) Name() string { return "sigmoid" }

func (Sigmoid) Forward(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func (Sigmoid) Backward(gy, y float32) float32 {
	return gy * y * (1 - y)
}

func (Sigmoid) KernelSource() string {
	return `fn activate(x: f32) -> f32 {
    return 1.0 / (1.0 + exp(-x));
}`
}

// Tanh applies the hyperbolic tangent.
type Tanh struct{}

func (Tanh) Name() string { return "tanh" }

func (Tanh) Forward(x float32) float32 {
	return math32.Tanh(x)
}

func (Tanh) Backward(gy, y float32) float32 {
	return gy * (1 - y*y)
}

func (Tanh) KernelSource() string {
	return `fn activate(x: f32) -> f32 {
    return tanh(x);
}`
}

// activationName returns "none" for a nil activation.
func activationName(act Activation) string {
	if act == nil {
		return "none"
	}
	return act.Name()
}
