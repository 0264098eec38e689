package engine

import (
	"github.com/joomcode/errorx"
)

var (
	EngineErrors = errorx.NewNamespace("engine")

	// RuntimeError covers failures in gantry's own bring-up logic, such as
	// asking it to start a service that has no runnable image.
	RuntimeError = EngineErrors.NewType("runtime")

	// DockerError wraps failures reported by the Docker daemon.
	DockerError = EngineErrors.NewType("docker")
)
