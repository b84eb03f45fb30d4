// Package software implements accel.Queue as an emulated device that runs on
// the host.
//
// The emulation keeps the offload model honest: device buffers are separate
// copies of host memory, commands execute in order on a dedicated goroutine,
// and results are only visible to the host after Read. Work items of one
// dispatch run concurrently, so kernels must not share output elements.
package software

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/strata/internal/accel"
)

// Config controls the emulated device.
type Config struct {
	Workers int          // concurrent work-item groups per dispatch (default: NumCPU)
	Depth   int          // command channel capacity (default: 64)
	Logger  *slog.Logger // default: slog.Default()
}

// Queue is an in-order command queue on the emulated device.
type Queue struct {
	cmds    chan command
	done    chan struct{}
	workers int
	logger  *slog.Logger

	mu     sync.RWMutex // guards closed against concurrent sends
	closed bool

	errMu sync.Mutex
	err   error // first failure of an asynchronous command
}

type command struct {
	name  string
	run   func() error
	reply chan error // nil for fire-and-forget commands
}

type buffer struct {
	owner *Queue
	n     int
	data  []float32 // touched only by the device goroutine after creation
	freed bool
}

func (b *buffer) Len() int {
	return b.n
}

// New starts an emulated device.
func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	q := &Queue{
		cmds:    make(chan command, cfg.Depth),
		done:    make(chan struct{}),
		workers: cfg.Workers,
		logger:  cfg.Logger.With("device", "software"),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for cmd := range q.cmds {
		err := cmd.run()
		if cmd.reply != nil {
			cmd.reply <- err
			continue
		}
		if err != nil {
			q.recordErr(err)
		}
	}
}

func (q *Queue) recordErr(err error) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	if q.err == nil {
		q.err = err
	}
}

func (q *Queue) takeErr() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	err := q.err
	q.err = nil
	return err
}

// submit enqueues cmd; when wait is set it blocks for the command's result.
func (q *Queue) submit(cmd command, wait bool) error {
	if wait {
		cmd.reply = make(chan error, 1)
	}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return errors.WithStack(accel.ErrClosed)
	}
	q.cmds <- cmd
	q.mu.RUnlock()

	if !wait {
		return nil
	}
	return <-cmd.reply
}

// Name identifies the device.
func (q *Queue) Name() string {
	return "software"
}

// Upload copies data into a new device buffer.
func (q *Queue) Upload(data []float32) (accel.Buffer, error) {
	if q.isClosed() {
		return nil, errors.WithStack(accel.ErrClosed)
	}
	dev := make([]float32, len(data))
	copy(dev, data)
	return &buffer{owner: q, n: len(dev), data: dev}, nil
}

// Allocate creates a zero-filled device buffer.
func (q *Queue) Allocate(n int) (accel.Buffer, error) {
	if n < 0 {
		return nil, errors.Wrapf(accel.ErrBadArgument, "allocate %d elements", n)
	}
	if q.isClosed() {
		return nil, errors.WithStack(accel.ErrClosed)
	}
	return &buffer{owner: q, n: n, data: make([]float32, n)}, nil
}

// Dispatch validates the arguments and enqueues the kernel.
func (q *Queue) Dispatch(k *accel.Kernel, global [3]int, args ...accel.Arg) error {
	if k == nil || k.Host == nil {
		name := "<nil>"
		if k != nil {
			name = k.Name
		}
		return errors.Wrapf(accel.ErrNoKernelCode, "kernel %s", name)
	}
	for i, g := range global {
		if g < 0 {
			return errors.Wrapf(accel.ErrBadArgument, "kernel %s: global[%d] = %d", k.Name, i, g)
		}
	}

	bufs := make([]*buffer, len(args))
	for i, a := range args {
		if !a.IsBuffer() {
			continue
		}
		b, err := q.own(a.Buffer())
		if err != nil {
			return errors.Wrapf(err, "kernel %s argument %d", k.Name, i)
		}
		bufs[i] = b
	}

	q.logger.Debug("dispatch", "kernel", k.Name, "global", global, "args", len(args))

	return q.submit(command{
		name: k.Name,
		run: func() error {
			b := accel.NewBindings(len(args))
			for i, a := range args {
				if bufs[i] != nil {
					if bufs[i].freed {
						return errors.Wrapf(accel.ErrReleased, "kernel %s argument %d", k.Name, i)
					}
					b.SetFloats(i, bufs[i].data)
					continue
				}
				b.SetInt(i, a.Value())
			}
			return q.execute(k, global, b)
		},
	}, false)
}

// execute runs every work item of one dispatch, one z-plane per task.
func (q *Queue) execute(k *accel.Kernel, global [3]int, b accel.Bindings) error {
	var g errgroup.Group
	g.SetLimit(q.workers)

	for z := 0; z < global[2]; z++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("kernel %s panicked at z=%d: %v", k.Name, z, r)
				}
			}()
			for y := 0; y < global[1]; y++ {
				for x := 0; x < global[0]; x++ {
					k.Host([3]int{x, y, z}, b)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Finish blocks until the queue is drained.
func (q *Queue) Finish() error {
	if err := q.submit(command{name: "finish", run: func() error { return nil }}, true); err != nil {
		return err
	}
	return q.takeErr()
}

// Read performs a blocking copy from device memory into dst.
func (q *Queue) Read(b accel.Buffer, dst []float32) error {
	buf, err := q.own(b)
	if err != nil {
		return err
	}
	if len(dst) != buf.n {
		return errors.Wrap(accel.ErrBadArgument, fmt.Sprintf("read %d elements into %d", buf.n, len(dst)))
	}

	if err := q.submit(command{
		name: "read",
		run: func() error {
			if buf.freed {
				return errors.WithStack(accel.ErrReleased)
			}
			copy(dst, buf.data)
			return nil
		},
	}, true); err != nil {
		return err
	}
	return q.takeErr()
}

// Free releases b after preceding commands complete.
func (q *Queue) Free(b accel.Buffer) {
	buf, err := q.own(b)
	if err != nil {
		return
	}
	if err := q.submit(command{
		name: "free",
		run: func() error {
			buf.freed = true
			buf.data = nil
			return nil
		},
	}, false); err != nil {
		// Queue closed: nothing can reference the buffer any more.
		buf.freed = true
	}
}

// Close drains outstanding commands and stops the device goroutine.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()

	<-q.done
	return q.takeErr()
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *Queue) own(b accel.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf.owner != q {
		return nil, errors.WithStack(accel.ErrForeignBuffer)
	}
	return buf, nil
}

var _ accel.Queue = (*Queue)(nil)
