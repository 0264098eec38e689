package engine

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/docker/docker/client"

	"github.com/matgreaves/gantry/spec"
)

const (
	// defaultInitialInterval is the starting poll interval.
	defaultInitialInterval = 50 * time.Millisecond

	// defaultMaxInterval is the maximum poll interval after backoff.
	defaultMaxInterval = 1 * time.Second

	// defaultReadyTimeout is the maximum wait for readiness when the
	// service declares no healthcheck of its own.
	defaultReadyTimeout = 30 * time.Second
)

// Probe performs a single readiness check.
type Probe func(ctx context.Context) error

// Poll repeatedly calls probe with exponential backoff until it succeeds
// or the timeout expires.
//
// If onFailure is non-nil it is called after each failed probe with the
// check error, giving the caller an opportunity to log.
func Poll(ctx context.Context, timeout time.Duration, probe Probe, onFailure func(err error)) error {
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	interval := defaultInitialInterval

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error

	for {
		if err := probe(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			if onFailure != nil {
				onFailure(err)
			}
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("readiness check failed after %s (last error: %v)", timeout, lastErr)
			}
			return fmt.Errorf("readiness check failed: %w", ctx.Err())
		case <-time.After(interval):
		}

		// Exponential backoff, capped.
		interval *= 2
		if interval > defaultMaxInterval {
			interval = defaultMaxInterval
		}
	}
}

// runningProbe reports success once the container is in the running state.
// A container that already exited is a hard failure, not a retry.
func runningProbe(cli *client.Client, containerID string) Probe {
	return func(ctx context.Context) error {
		inspect, err := cli.ContainerInspect(ctx, containerID)
		if err != nil {
			return err
		}
		if inspect.State == nil {
			return fmt.Errorf("no container state")
		}
		if inspect.State.Running {
			return nil
		}
		return fmt.Errorf("container state %q", inspect.State.Status)
	}
}

// healthProbe reports success once Docker's health status is "healthy".
func healthProbe(cli *client.Client, containerID string) Probe {
	return func(ctx context.Context) error {
		inspect, err := cli.ContainerInspect(ctx, containerID)
		if err != nil {
			return err
		}
		if inspect.State == nil || inspect.State.Health == nil {
			return fmt.Errorf("no health status reported")
		}
		switch inspect.State.Health.Status {
		case "healthy":
			return nil
		default:
			return fmt.Errorf("health status %q", inspect.State.Health.Status)
		}
	}
}

// tcpProbe dials the published host side of a port mapping.
func tcpProbe(pm spec.PortMapping) Probe {
	host := pm.HostIP
	if host == "" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(pm.HostPort))
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn.Close()
		return nil
	}
}

// healthTimeout derives a poll deadline from the declared healthcheck:
// the start period plus one interval per allowed retry, with room for the
// final probe itself.
func healthTimeout(hc *spec.Healthcheck) time.Duration {
	if hc == nil {
		return defaultReadyTimeout
	}

	interval := 30 * time.Second // Docker's default
	if d, err := time.ParseDuration(hc.Interval); err == nil && d > 0 {
		interval = d
	}
	retries := hc.Retries
	if retries <= 0 {
		retries = 3 // Docker's default
	}
	var start time.Duration
	if d, err := time.ParseDuration(hc.StartPeriod); err == nil && d > 0 {
		start = d
	}

	timeout := start + interval*time.Duration(retries+1)
	if timeout < defaultReadyTimeout {
		return defaultReadyTimeout
	}
	return timeout
}
