package main

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/born-ml/strata/accel"
	"github.com/born-ml/strata/nn"
	"github.com/born-ml/strata/optim"
	"github.com/born-ml/strata/tensor"
)

const side = 8

type trainConfig struct {
	Accel string
	Steps int
	Batch int
	LR    float64
	Seed  uint64
}

// autoencoder compresses [1, 8, 8] images to [4, 4, 4] and back.
//
//	Conv 1->4, 3x3, pad 1 + ReLU -> [4, 8, 8]
//	MaxPool 2x2                  -> [4, 4, 4]
//	Deconv 4->1, 2x2, stride 2   -> [1, 8, 8] + Sigmoid
func autoencoder(queue accel.Queue, seed uint64, logger *slog.Logger) (*nn.Sequential, error) {
	conv, err := nn.NewConvolution2D(nn.Convolution2DConfig{
		InChannels: 1, OutChannels: 4, KernelSize: 3, Pad: 1,
		Activation:  nn.ReLU{},
		Initializer: nn.NewXavier(seed),
	})
	if err != nil {
		return nil, err
	}
	pool, err := nn.NewMaxPooling2D(2, 2, 0)
	if err != nil {
		return nil, err
	}
	deconv, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
		InChannels: 4, OutChannels: 1, KernelSize: 2, Stride: 2,
		Activation:  nn.Sigmoid{},
		Initializer: nn.NewXavier(seed + 1),
		Accelerator: queue,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return nn.NewSequential(conv, pool, deconv), nil
}

// squares draws batch images, each holding one bright square of random size
// and position on a dark background.
func squares(rng *rand.Rand, batch int) *tensor.Tensor {
	data := make([]float32, batch*side*side)
	for b := range batch {
		img := data[b*side*side : (b+1)*side*side]
		size := 2 + rng.IntN(3)
		y0, x0 := rng.IntN(side-size+1), rng.IntN(side-size+1)
		for y := y0; y < y0+size; y++ {
			for x := x0; x < x0+size; x++ {
				img[y*side+x] = 1
			}
		}
	}
	return tensor.MustWrap(data, tensor.Shape{1, side, side}, batch)
}

func train(cfg trainConfig, queue accel.Queue, logger *slog.Logger) (float32, error) {
	if cfg.Steps <= 0 || cfg.Batch <= 0 {
		return 0, fmt.Errorf("steps and batch must be positive, got %d and %d", cfg.Steps, cfg.Batch)
	}

	model, err := autoencoder(queue, cfg.Seed, logger)
	if err != nil {
		return 0, err
	}
	optimizer, err := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: float32(cfg.LR)})
	if err != nil {
		return 0, err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	logger.Info("training autoencoder", "accel", cfg.Accel, "steps", cfg.Steps, "batch", cfg.Batch, "lr", cfg.LR)

	var loss float32
	for step := range cfg.Steps {
		x := squares(rng, cfg.Batch)

		y, ctx, err := model.Forward(x)
		if err != nil {
			return 0, fmt.Errorf("step %d: forward: %w", step, err)
		}
		var gy *tensor.Tensor
		loss, gy, err = nn.MeanSquaredError(y, x)
		if err != nil {
			return 0, fmt.Errorf("step %d: loss: %w", step, err)
		}
		if _, err := model.Backward(ctx, gy); err != nil {
			return 0, fmt.Errorf("step %d: backward: %w", step, err)
		}
		if err := optimizer.Step(); err != nil {
			return 0, fmt.Errorf("step %d: update: %w", step, err)
		}

		if step%50 == 0 || step == cfg.Steps-1 {
			logger.Info("step", "n", step, "loss", loss)
		}
	}
	return loss, nil
}
