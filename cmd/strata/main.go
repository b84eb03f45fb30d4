// Package main provides the strata CLI.
//
// Commands:
//
//	strata version
//	strata train [-accel cpu|software|webgpu] [-steps N] [-batch N] [-lr F] [-seed N] [-v]
//
// train fits a small convolutional autoencoder (Convolution2D, MaxPooling2D,
// Deconvolution2D) to synthetic 8x8 images and reports the loss.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("strata %s\n", version)
	case "train":
		if err := runTrain(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "train: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("strata - a small differentiable tensor engine")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  train      Train a convolutional autoencoder on synthetic data")
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	cfg := trainConfig{}
	fs.StringVar(&cfg.Accel, "accel", "cpu", "Deconvolution2D device: cpu, software or webgpu")
	fs.IntVar(&cfg.Steps, "steps", 300, "Number of optimizer steps")
	fs.IntVar(&cfg.Batch, "batch", 16, "Images per step")
	fs.Float64Var(&cfg.LR, "lr", 0.01, "Adam learning rate")
	fs.Uint64Var(&cfg.Seed, "seed", 1, "Seed for data and weights")
	verbose := fs.Bool("v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	queue, err := openAccelerator(cfg.Accel, logger)
	if err != nil {
		return err
	}
	if queue != nil {
		defer queue.Close()
	}

	loss, err := train(cfg, queue, logger)
	if err != nil {
		return err
	}
	fmt.Printf("final loss: %.6f\n", loss)
	return nil
}
