//go:build windows

package main

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/strata/accel"
	"github.com/born-ml/strata/accel/software"
	"github.com/born-ml/strata/accel/webgpu"
)

func openAccelerator(name string, logger *slog.Logger) (accel.Queue, error) {
	switch name {
	case "cpu", "":
		return nil, nil
	case "software":
		return software.New(software.Config{Logger: logger}), nil
	case "webgpu":
		if !webgpu.IsAvailable() {
			return nil, fmt.Errorf("webgpu: no adapter available")
		}
		return webgpu.New(logger)
	default:
		return nil, fmt.Errorf("unknown accelerator %q", name)
	}
}
