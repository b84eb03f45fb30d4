//go:build !windows

package main

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/strata/accel"
	"github.com/born-ml/strata/accel/software"
)

func openAccelerator(name string, logger *slog.Logger) (accel.Queue, error) {
	switch name {
	case "cpu", "":
		return nil, nil
	case "software":
		return software.New(software.Config{Logger: logger}), nil
	case "webgpu":
		return nil, fmt.Errorf("webgpu accelerator is only built on windows")
	default:
		return nil, fmt.Errorf("unknown accelerator %q", name)
	}
}
