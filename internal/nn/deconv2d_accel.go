package nn

import (
	"github.com/born-ml/strata/internal/accel"
)

// upload copies every host slice to the device. On error nothing stays
// allocated.
func upload(q accel.Queue, hosts ...[]float32) ([]accel.Buffer, error) {
	bufs := make([]accel.Buffer, 0, len(hosts))
	for _, h := range hosts {
		b, err := q.Upload(h)
		if err != nil {
			accel.FreeAll(q, bufs...)
			return nil, err
		}
		bufs = append(bufs, b)
	}
	return bufs, nil
}

// forwardAccel runs the forward kernel over {outW, outH, batch*outCh}.
func (d *Deconvolution2D) forwardAccel(g deconvGeometry, x []float32) ([]float32, error) {
	q := d.queue

	hasBias := 0
	bias := make([]float32, g.outCh) // bound even without bias
	if d.Bias != nil {
		hasBias = 1
		bias = d.Bias.Data.Data()
	}

	bufs, err := upload(q, x, d.Weight.Data.Data(), bias)
	if err != nil {
		return nil, err
	}
	defer accel.FreeAll(q, bufs...)

	n := g.batch * g.outCh * g.outH * g.outW
	yb, err := q.Allocate(n)
	if err != nil {
		return nil, err
	}
	defer q.Free(yb)

	args := append([]accel.Arg{accel.Buf(bufs[0]), accel.Buf(bufs[1]), accel.Buf(bufs[2]), accel.Buf(yb)},
		deconvParams(g)...)
	args = append(args, accel.Int(hasBias))

	if err := q.Dispatch(d.kernels.forward, [3]int{g.outW, g.outH, g.batch * g.outCh}, args...); err != nil {
		return nil, err
	}
	if err := q.Finish(); err != nil {
		return nil, err
	}

	y := make([]float32, n)
	if err := q.Read(yb, y); err != nil {
		return nil, err
	}
	return y, nil
}

// backwardAccel runs the weight-gradient pass over {k, k, outCh*inCh} and the
// input-gradient pass over {W, H, batch*inCh}. gy is already corrected by the
// activation derivative.
func (d *Deconvolution2D) backwardAccel(g deconvGeometry, x, gy []float32) ([]float32, error) {
	q := d.queue

	// The accumulated weight gradient travels to the device and back so the
	// kernel can add into it; the layer lock covers the whole round trip.
	d.mu.Lock()
	defer d.mu.Unlock()

	bufs, err := upload(q, x, gy, d.Weight.Data.Data(), d.Weight.Grad.Data())
	if err != nil {
		return nil, err
	}
	defer accel.FreeAll(q, bufs...)
	xb, gyb, wb, gwb := bufs[0], bufs[1], bufs[2], bufs[3]

	nx := g.batch * g.inCh * g.inH * g.inW
	gxb, err := q.Allocate(nx)
	if err != nil {
		return nil, err
	}
	defer q.Free(gxb)

	params := deconvParams(g)
	if err := q.Dispatch(d.kernels.gradW, [3]int{g.k, g.k, g.outCh * g.inCh},
		append([]accel.Arg{accel.Buf(xb), accel.Buf(gyb), accel.Buf(gwb)}, params...)...); err != nil {
		return nil, err
	}
	if err := q.Dispatch(d.kernels.gradX, [3]int{g.inW, g.inH, g.batch * g.inCh},
		append([]accel.Arg{accel.Buf(gyb), accel.Buf(wb), accel.Buf(gxb)}, params...)...); err != nil {
		return nil, err
	}
	if err := q.Finish(); err != nil {
		return nil, err
	}

	gx := make([]float32, nx)
	if err := q.Read(gxb, gx); err != nil {
		return nil, err
	}
	if err := q.Read(gwb, d.Weight.Grad.Data()); err != nil {
		return nil, err
	}

	d.accumulateBias(g, gy)
	return gx, nil
}
