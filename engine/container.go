package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/matgreaves/gantry/spec"
)

const (
	// labelProject marks every container and network created by gantry
	// with the project it belongs to. Down and ps filter on it.
	labelProject = "gantry.project"

	// labelService carries the topology service name.
	labelService = "gantry.service"
)

// ContainerName returns the Docker container name for a service instance.
func ContainerName(project, serviceName string) string {
	return fmt.Sprintf("gantry-%s-%s", project, serviceName)
}

// NetworkName returns the per-project bridge network name. All services
// of a project join it so they can reach each other by service name.
func NetworkName(project string) string {
	return "gantry_" + project
}

// VolumeName prefixes a named volume with the project, so two projects
// using the same volume name in their files do not share data.
func VolumeName(project, volume string) string {
	return project + "_" + volume
}

// containerSpec is everything createContainer needs for one service.
type containerSpec struct {
	project string
	name    string
	service spec.Service
	ports   []spec.PortMapping
	mounts  []spec.VolumeMount
	dir     string // base for relative bind-mount sources
}

// createContainer creates (but does not start) the container for a service
// and returns its ID.
func createContainer(ctx context.Context, cli *client.Client, cs containerSpec) (string, error) {
	portBindings, exposedPorts := buildPortMap(cs.ports)

	mounts, anonymous, err := buildMounts(cs.project, cs.mounts, cs.dir)
	if err != nil {
		return "", err
	}

	config := &container.Config{
		Image:        cs.service.Image,
		Env:          envSlice(cs.service.Environment),
		ExposedPorts: exposedPorts,
		Volumes:      anonymous,
		Labels:       containerLabels(cs.project, cs.name, cs.service.Labels),
		Healthcheck:  healthConfig(cs.service.Healthcheck),
	}
	if len(cs.service.Entrypoint) > 0 {
		config.Entrypoint = []string(cs.service.Entrypoint)
	}
	if len(cs.service.Command) > 0 {
		config.Cmd = []string(cs.service.Command)
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Mounts:       mounts,
	}
	if cs.service.Restart != "" && cs.service.Restart != "no" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(cs.service.Restart),
		}
	}
	// On Linux, ensure host.docker.internal resolves to the host.
	if runtime.GOOS == "linux" {
		hostConfig.ExtraHosts = []string{"host.docker.internal:host-gateway"}
	}

	// Join the project network under the service name so dependents can
	// dial e.g. "poa-node-arthur:8545".
	networking := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			NetworkName(cs.project): {Aliases: []string{cs.name}},
		},
	}

	resp, err := cli.ContainerCreate(ctx, config, hostConfig, networking, nil, ContainerName(cs.project, cs.name))
	if err != nil {
		return "", DockerError.Wrap(err, "service %q: create container", cs.name)
	}
	return resp.ID, nil
}

// stopAndRemove gracefully stops a container, then removes it. Uses a
// background context so teardown still works when the caller's context
// is already cancelled.
func stopAndRemove(cli *client.Client, containerID string) error {
	ctx := context.Background()
	timeout := 10 // seconds
	if err := cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		// Fall through to forced removal.
		_ = err
	}
	if err := cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return DockerError.Wrap(err, "remove container %s", containerID)
	}
	return nil
}

// ensureNetwork creates the project bridge network if it does not exist.
func ensureNetwork(ctx context.Context, cli *client.Client, project string) error {
	name := NetworkName(project)
	if _, err := cli.NetworkInspect(ctx, name, network.InspectOptions{}); err == nil {
		return nil
	}
	_, err := cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{labelProject: project},
	})
	if err != nil {
		return DockerError.Wrap(err, "create network %s", name)
	}
	return nil
}

// removeNetwork removes the project network, ignoring the not-found case.
func removeNetwork(ctx context.Context, cli *client.Client, project string) {
	cli.NetworkRemove(ctx, NetworkName(project))
}

// buildPortMap converts parsed port mappings into Docker port bindings.
// A zero host port tells the daemon to pick a free one.
func buildPortMap(ports []spec.PortMapping) (nat.PortMap, nat.PortSet) {
	bindings := make(nat.PortMap, len(ports))
	exposed := make(nat.PortSet, len(ports))

	for _, pm := range ports {
		containerPort := nat.Port(fmt.Sprintf("%d/%s", pm.ContainerPort, pm.Protocol))
		exposed[containerPort] = struct{}{}

		hostPort := ""
		if pm.HostPort != 0 {
			hostPort = strconv.Itoa(pm.HostPort)
		}
		bindings[containerPort] = append(bindings[containerPort], nat.PortBinding{
			HostIP:   pm.HostIP,
			HostPort: hostPort,
		})
	}
	return bindings, exposed
}

// buildMounts converts parsed volume strings into Docker mounts. Bind
// sources are resolved relative to dir (the directory of the first
// topology file). Named volumes get the project prefix. Anonymous
// volumes are returned separately for container.Config.Volumes.
func buildMounts(project string, vols []spec.VolumeMount, dir string) ([]mount.Mount, map[string]struct{}, error) {
	var mounts []mount.Mount
	var anonymous map[string]struct{}

	for _, vm := range vols {
		switch {
		case vm.Source == "":
			if anonymous == nil {
				anonymous = make(map[string]struct{})
			}
			anonymous[vm.Target] = struct{}{}
		case vm.Bind():
			src := vm.Source
			if !filepath.IsAbs(src) {
				abs, err := filepath.Abs(filepath.Join(dir, src))
				if err != nil {
					return nil, nil, fmt.Errorf("volume %q: %w", vm.String(), err)
				}
				src = abs
			}
			mounts = append(mounts, mount.Mount{
				Type:     mount.TypeBind,
				Source:   src,
				Target:   vm.Target,
				ReadOnly: vm.ReadOnly,
			})
		default:
			mounts = append(mounts, mount.Mount{
				Type:     mount.TypeVolume,
				Source:   VolumeName(project, vm.Source),
				Target:   vm.Target,
				ReadOnly: vm.ReadOnly,
			})
		}
	}
	return mounts, anonymous, nil
}

// envSlice renders the environment map as sorted KEY=VALUE strings so
// container definitions are deterministic.
func envSlice(env spec.Environment) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for _, k := range sortedEnvKeys(env) {
		out = append(out, k+"="+env[k])
	}
	return out
}

func sortedEnvKeys(env spec.Environment) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// containerLabels merges user labels with gantry's tracking labels. The
// tracking labels win on collision.
func containerLabels(project, service string, user map[string]string) map[string]string {
	labels := make(map[string]string, len(user)+2)
	for k, v := range user {
		labels[k] = v
	}
	labels[labelProject] = project
	labels[labelService] = service
	return labels
}

// healthConfig converts the declared healthcheck. Durations were already
// validated; unparseable values fall back to the daemon defaults.
func healthConfig(hc *spec.Healthcheck) *container.HealthConfig {
	if hc == nil {
		return nil
	}
	if hc.Disable {
		return &container.HealthConfig{Test: []string{"NONE"}}
	}

	out := &container.HealthConfig{
		Test:    []string(hc.Test),
		Retries: hc.Retries,
	}
	if d, err := time.ParseDuration(hc.Interval); err == nil {
		out.Interval = d
	}
	if d, err := time.ParseDuration(hc.Timeout); err == nil {
		out.Timeout = d
	}
	if d, err := time.ParseDuration(hc.StartPeriod); err == nil {
		out.StartPeriod = d
	}
	return out
}
