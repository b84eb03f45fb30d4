package nn

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/born-ml/strata/internal/accel"
)

// Kernel argument layout shared by the three deconvolution passes: the buffers
// come first, followed by the geometry scalars in deconvParams order.
//
//	forward: x, w, bias, y, params..., has_bias
//	grad_w:  x, gy, gw, params...
//	grad_x:  gy, w, gx, params...
const deconvParamsWGSL = `struct Params {
    batch: i32,
    in_ch: i32,
    out_ch: i32,
    in_h: i32,
    in_w: i32,
    out_h: i32,
    out_w: i32,
    k: i32,
    stride: i32,
    trim: i32,
{{- if .HasBiasFlag}}
    has_bias: i32,
{{- end}}
}`

// deconvForwardWGSL gathers, for each output element, every input element
// whose kernel footprint covers it: t = oy + trim - ky must be a non-negative
// multiple of stride and t/stride a valid input row.
const deconvForwardWGSL = `@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> w: array<f32>;
@group(0) @binding(2) var<storage, read> bias: array<f32>;
@group(0) @binding(3) var<storage, read_write> y: array<f32>;

{{.Params}}
@group(0) @binding(4) var<uniform> p: Params;

{{.Activation}}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let ox = i32(gid.x);
    let oy = i32(gid.y);
    let bo = i32(gid.z);
    if (ox >= p.out_w || oy >= p.out_h || bo >= p.batch * p.out_ch) {
        return;
    }
    let b = bo / p.out_ch;
    let och = bo % p.out_ch;

    var sum = 0.0;
    for (var ich = 0; ich < p.in_ch; ich++) {
        for (var ky = 0; ky < p.k; ky++) {
            let ty = oy + p.trim - ky;
            if (ty < 0 || ty % p.stride != 0 || ty / p.stride >= p.in_h) {
                continue;
            }
            let iy = ty / p.stride;
            for (var kx = 0; kx < p.k; kx++) {
                let tx = ox + p.trim - kx;
                if (tx < 0 || tx % p.stride != 0 || tx / p.stride >= p.in_w) {
                    continue;
                }
                let ix = tx / p.stride;
                sum += x[((b * p.in_ch + ich) * p.in_h + iy) * p.in_w + ix] *
                    w[((och * p.in_ch + ich) * p.k + ky) * p.k + kx];
            }
        }
    }
    if (p.has_bias != 0) {
        sum += bias[och];
    }
    y[(bo * p.out_h + oy) * p.out_w + ox] = activate(sum);
}
`

// deconvGradWWGSL accumulates into gw, which holds the gradient uploaded
// before the dispatch.
const deconvGradWWGSL = `@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> gy: array<f32>;
@group(0) @binding(2) var<storage, read_write> gw: array<f32>;

{{.Params}}
@group(0) @binding(3) var<uniform> p: Params;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let kx = i32(gid.x);
    let ky = i32(gid.y);
    let oi = i32(gid.z);
    if (kx >= p.k || ky >= p.k || oi >= p.out_ch * p.in_ch) {
        return;
    }
    let och = oi / p.in_ch;
    let ich = oi % p.in_ch;

    var sum = 0.0;
    for (var b = 0; b < p.batch; b++) {
        for (var iy = 0; iy < p.in_h; iy++) {
            let oy = iy * p.stride + ky - p.trim;
            if (oy < 0 || oy >= p.out_h) {
                continue;
            }
            for (var ix = 0; ix < p.in_w; ix++) {
                let ox = ix * p.stride + kx - p.trim;
                if (ox < 0 || ox >= p.out_w) {
                    continue;
                }
                sum += x[((b * p.in_ch + ich) * p.in_h + iy) * p.in_w + ix] *
                    gy[((b * p.out_ch + och) * p.out_h + oy) * p.out_w + ox];
            }
        }
    }
    let idx = (oi * p.k + ky) * p.k + kx;
    gw[idx] = gw[idx] + sum;
}
`

const deconvGradXWGSL = `@group(0) @binding(0) var<storage, read> gy: array<f32>;
@group(0) @binding(1) var<storage, read> w: array<f32>;
@group(0) @binding(2) var<storage, read_write> gx: array<f32>;

{{.Params}}
@group(0) @binding(3) var<uniform> p: Params;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let ix = i32(gid.x);
    let iy = i32(gid.y);
    let bi = i32(gid.z);
    if (ix >= p.in_w || iy >= p.in_h || bi >= p.batch * p.in_ch) {
        return;
    }
    let b = bi / p.in_ch;
    let ich = bi % p.in_ch;

    var sum = 0.0;
    for (var och = 0; och < p.out_ch; och++) {
        for (var ky = 0; ky < p.k; ky++) {
            let oy = iy * p.stride + ky - p.trim;
            if (oy < 0 || oy >= p.out_h) {
                continue;
            }
            for (var kx = 0; kx < p.k; kx++) {
                let ox = ix * p.stride + kx - p.trim;
                if (ox < 0 || ox >= p.out_w) {
                    continue;
                }
                sum += w[((och * p.in_ch + ich) * p.k + ky) * p.k + kx] *
                    gy[((b * p.out_ch + och) * p.out_h + oy) * p.out_w + ox];
            }
        }
    }
    gx[(bi * p.in_h + iy) * p.in_w + ix] = sum;
}
`

var deconvWorkgroup = [3]int{8, 8, 1}

// deconvKernels is the kernel set of one layer.
type deconvKernels struct {
	forward *accel.Kernel
	gradW   *accel.Kernel
	gradX   *accel.Kernel
}

// deconvSources holds the rendered WGSL of one activation variant.
type deconvSources struct {
	forwardName string
	forward     string
	gradW       string
	gradX       string
}

// deconvVariants caches rendered sources by a hash of the activation's WGSL.
// Names are not unique across activations, so they only label the kernel.
var deconvVariants sync.Map

// deconvVariant returns the kernel set for act. Sources are rendered once per
// distinct activation kernel; the host functions always close over act.
func deconvVariant(act Activation) (*deconvKernels, error) {
	name := activationName(act)
	actSrc := identitySource
	if act != nil {
		actSrc = act.KernelSource()
		if actSrc == "" {
			return nil, fmt.Errorf("activation %s has no accelerator kernel: %w", name, ErrInvalidConfig)
		}
	}

	src, err := deconvRender(name, actSrc)
	if err != nil {
		return nil, err
	}
	return &deconvKernels{
		forward: &accel.Kernel{
			Name:      src.forwardName,
			Source:    src.forward,
			Workgroup: deconvWorkgroup,
			Host:      deconvForwardHost(act),
		},
		gradW: &accel.Kernel{
			Name:      "deconv2d_grad_w",
			Source:    src.gradW,
			Workgroup: deconvWorkgroup,
			Host:      deconvGradWHost,
		},
		gradX: &accel.Kernel{
			Name:      "deconv2d_grad_x",
			Source:    src.gradX,
			Workgroup: deconvWorkgroup,
			Host:      deconvGradXHost,
		},
	}, nil
}

func deconvRender(name, actSrc string) (*deconvSources, error) {
	h := fnv.New64a()
	h.Write([]byte(actSrc))
	key := strconv.FormatUint(h.Sum64(), 16)
	if v, ok := deconvVariants.Load(key); ok {
		return v.(*deconvSources), nil
	}

	params, err := accel.Render("deconv2d_params", deconvParamsWGSL, map[string]any{"HasBiasFlag": false})
	if err != nil {
		return nil, err
	}
	paramsBias, err := accel.Render("deconv2d_params_bias", deconvParamsWGSL, map[string]any{"HasBiasFlag": true})
	if err != nil {
		return nil, err
	}

	fwdSrc, err := accel.Render("deconv2d_forward", deconvForwardWGSL, map[string]any{
		"Params":     paramsBias,
		"Activation": actSrc,
	})
	if err != nil {
		return nil, err
	}
	gwSrc, err := accel.Render("deconv2d_grad_w", deconvGradWWGSL, map[string]any{"Params": params})
	if err != nil {
		return nil, err
	}
	gxSrc, err := accel.Render("deconv2d_grad_x", deconvGradXWGSL, map[string]any{"Params": params})
	if err != nil {
		return nil, err
	}

	// The hash goes into the name so pipeline caches keyed by name cannot mix
	// up two activations that report the same name.
	src := &deconvSources{
		forwardName: "deconv2d_forward_" + name + "_" + key,
		forward:     fwdSrc,
		gradW:       gwSrc,
		gradX:       gxSrc,
	}
	v, _ := deconvVariants.LoadOrStore(key, src)
	return v.(*deconvSources), nil
}

// deconvParams returns the geometry scalars in kernel order.
func deconvParams(g deconvGeometry) []accel.Arg {
	return []accel.Arg{
		accel.Int(g.batch), accel.Int(g.inCh), accel.Int(g.outCh),
		accel.Int(g.inH), accel.Int(g.inW),
		accel.Int(g.outH), accel.Int(g.outW),
		accel.Int(g.k), accel.Int(g.stride), accel.Int(g.trim),
	}
}

// bindGeometry reads deconvParams back from slot at onwards.
func bindGeometry(b accel.Bindings, at int) deconvGeometry {
	return deconvGeometry{
		batch: b.Int(at), inCh: b.Int(at + 1), outCh: b.Int(at + 2),
		inH: b.Int(at + 3), inW: b.Int(at + 4),
		outH: b.Int(at + 5), outW: b.Int(at + 6),
		k: b.Int(at + 7), stride: b.Int(at + 8), trim: b.Int(at + 9),
	}
}

// Host implementations mirror the WGSL bodies work item for work item.

func deconvForwardHost(act Activation) accel.HostFunc {
	return func(id [3]int, b accel.Bindings) {
		x, w, bias, y := b.Floats(0), b.Floats(1), b.Floats(2), b.Floats(3)
		p := bindGeometry(b, 4)
		hasBias := b.Int(14) != 0

		ox, oy, bo := id[0], id[1], id[2]
		if ox >= p.outW || oy >= p.outH || bo >= p.batch*p.outCh {
			return
		}
		bn, och := bo/p.outCh, bo%p.outCh

		var sum float32
		for ich := 0; ich < p.inCh; ich++ {
			for ky := 0; ky < p.k; ky++ {
				ty := oy + p.trim - ky
				if ty < 0 || ty%p.stride != 0 || ty/p.stride >= p.inH {
					continue
				}
				iy := ty / p.stride
				for kx := 0; kx < p.k; kx++ {
					tx := ox + p.trim - kx
					if tx < 0 || tx%p.stride != 0 || tx/p.stride >= p.inW {
						continue
					}
					ix := tx / p.stride
					sum += x[((bn*p.inCh+ich)*p.inH+iy)*p.inW+ix] *
						w[((och*p.inCh+ich)*p.k+ky)*p.k+kx]
				}
			}
		}
		if hasBias {
			sum += bias[och]
		}
		if act != nil {
			sum = act.Forward(sum)
		}
		y[(bo*p.outH+oy)*p.outW+ox] = sum
	}
}

func deconvGradWHost(id [3]int, b accel.Bindings) {
	x, gy, gw := b.Floats(0), b.Floats(1), b.Floats(2)
	p := bindGeometry(b, 3)

	kx, ky, oi := id[0], id[1], id[2]
	if kx >= p.k || ky >= p.k || oi >= p.outCh*p.inCh {
		return
	}
	och, ich := oi/p.inCh, oi%p.inCh

	var sum float32
	for bn := 0; bn < p.batch; bn++ {
		for iy := 0; iy < p.inH; iy++ {
			oy := iy*p.stride + ky - p.trim
			if oy < 0 || oy >= p.outH {
				continue
			}
			for ix := 0; ix < p.inW; ix++ {
				ox := ix*p.stride + kx - p.trim
				if ox < 0 || ox >= p.outW {
					continue
				}
				sum += x[((bn*p.inCh+ich)*p.inH+iy)*p.inW+ix] *
					gy[((bn*p.outCh+och)*p.outH+oy)*p.outW+ox]
			}
		}
	}
	gw[(oi*p.k+ky)*p.k+kx] += sum
}

func deconvGradXHost(id [3]int, b accel.Bindings) {
	gy, w, gx := b.Floats(0), b.Floats(1), b.Floats(2)
	p := bindGeometry(b, 3)

	ix, iy, bi := id[0], id[1], id[2]
	if ix >= p.inW || iy >= p.inH || bi >= p.batch*p.inCh {
		return
	}
	bn, ich := bi/p.inCh, bi%p.inCh

	var sum float32
	for och := 0; och < p.outCh; och++ {
		for ky := 0; ky < p.k; ky++ {
			oy := iy*p.stride + ky - p.trim
			if oy < 0 || oy >= p.outH {
				continue
			}
			for kx := 0; kx < p.k; kx++ {
				ox := ix*p.stride + kx - p.trim
				if ox < 0 || ox >= p.outW {
					continue
				}
				sum += w[((och*p.inCh+ich)*p.k+ky)*p.k+kx] *
					gy[((bn*p.outCh+och)*p.outH+oy)*p.outW+ox]
			}
		}
	}
	gx[(bi*p.inH+iy)*p.inW+ix] = sum
}
