package nn

import (
	"github.com/born-ml/strata/internal/parallel"
)

// forwardCPU is the reference path.
//
// For output row oy (in untrimmed coordinates) the contributing input rows are
// those iy with 0 <= oy - iy*stride < k:
//
//	iyStart = oy < k ? 0 : (oy-k)/stride + 1
//	iyLimit = min(oy/stride + 1, H)
//
// and the same holds for columns.
func (d *Deconvolution2D) forwardCPU(g deconvGeometry, x []float32) []float32 {
	y := make([]float32, g.batch*g.outCh*g.outH*g.outW)
	w := d.Weight.Data.Data()

	var bias []float32
	if d.Bias != nil {
		bias = d.Bias.Data.Data()
	}

	k, s := g.k, g.stride
	inPlane := g.inH * g.inW
	kPlane := k * k

	parallel.ForBatch(g.batch, g.outCh, func(b, och int) {
		out := y[(b*g.outCh+och)*g.outH*g.outW:]
		xb := x[b*g.inCh*inPlane:]
		wo := w[och*g.inCh*kPlane:]

		for oy := g.trim; oy < g.outH+g.trim; oy++ {
			iyLimit := min(oy/s+1, g.inH)
			iyStart := 0
			if oy >= k {
				iyStart = (oy-k)/s + 1
			}

			for ox := g.trim; ox < g.outW+g.trim; ox++ {
				ixLimit := min(ox/s+1, g.inW)
				ixStart := 0
				if ox >= k {
					ixStart = (ox-k)/s + 1
				}

				var sum float32
				for ich := 0; ich < g.inCh; ich++ {
					xc := xb[ich*inPlane:]
					wc := wo[ich*kPlane:]
					for iy := iyStart; iy < iyLimit; iy++ {
						ky := oy - iy*s
						for ix := ixStart; ix < ixLimit; ix++ {
							sum += xc[iy*g.inW+ix] * wc[ky*k+ox-ix*s]
						}
					}
				}

				if bias != nil {
					sum += bias[och]
				}
				if d.act != nil {
					sum = d.act.Forward(sum)
				}
				out[(oy-g.trim)*g.outW+ox-g.trim] = sum
			}
		}
	}, d.par)

	return y
}

// backwardCPU accumulates gW and gb from the activation-corrected gradient gy
// and returns gx.
func (d *Deconvolution2D) backwardCPU(g deconvGeometry, x, gy []float32) []float32 {
	w := d.Weight.Data.Data()
	k, s := g.k, g.stride
	inPlane := g.inH * g.inW
	outPlane := g.outH * g.outW
	kPlane := k * k

	// Weight gradient: one (och, ich) kernel plane per work item.
	gw := make([]float32, len(w))
	parallel.For(g.outCh*g.inCh, func(oi int) {
		och, ich := oi/g.inCh, oi%g.inCh
		dst := gw[oi*kPlane : (oi+1)*kPlane]
		for b := 0; b < g.batch; b++ {
			xc := x[(b*g.inCh+ich)*inPlane:]
			gc := gy[(b*g.outCh+och)*outPlane:]
			for iy := 0; iy < g.inH; iy++ {
				for ky := 0; ky < k; ky++ {
					oy := iy*s + ky - g.trim
					if oy < 0 || oy >= g.outH {
						continue
					}
					for ix := 0; ix < g.inW; ix++ {
						xv := xc[iy*g.inW+ix]
						for kx := 0; kx < k; kx++ {
							ox := ix*s + kx - g.trim
							if ox < 0 || ox >= g.outW {
								continue
							}
							dst[ky*k+kx] += xv * gc[oy*g.outW+ox]
						}
					}
				}
			}
		}
	}, d.par)

	// Input gradient: gather over every output position the input fed.
	gx := make([]float32, g.batch*g.inCh*inPlane)
	parallel.ForBatch(g.batch, g.inCh, func(b, ich int) {
		dst := gx[(b*g.inCh+ich)*inPlane:]
		for iy := 0; iy < g.inH; iy++ {
			for ix := 0; ix < g.inW; ix++ {
				var sum float32
				for och := 0; och < g.outCh; och++ {
					gc := gy[(b*g.outCh+och)*outPlane:]
					wc := w[(och*g.inCh+ich)*kPlane:]
					for ky := 0; ky < k; ky++ {
						oy := iy*s + ky - g.trim
						if oy < 0 || oy >= g.outH {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ox := ix*s + kx - g.trim
							if ox < 0 || ox >= g.outW {
								continue
							}
							sum += wc[ky*k+kx] * gc[oy*g.outW+ox]
						}
					}
				}
				dst[iy*g.inW+ix] = sum
			}
		}
	}, d.par)

	d.mu.Lock()
	defer d.mu.Unlock()
	accumulate(d.Weight.Grad, gw)
	d.accumulateBias(g, gy)

	return gx
}
