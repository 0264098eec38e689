// Package engine brings a materialized topology up on the local Docker
// daemon and tears it down again. Services start wave by wave in
// dependency order; within a wave they start concurrently and the first
// failure cancels the rest.
package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/matgreaves/run/onexit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/matgreaves/gantry/materialize"
	"github.com/matgreaves/gantry/resolve"
	"github.com/matgreaves/gantry/spec"
)

// Engine coordinates container lifecycle for a project.
type Engine struct {
	// Log receives lifecycle events. Never nil after New.
	Log *EventLog

	// Ports tracks host ports claimed by projects in this process.
	Ports *PortRegistry

	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics

	// Logger is the structured logger for engine internals.
	Logger zerolog.Logger

	// Dir is the base directory for relative bind-mount sources,
	// normally the directory of the first topology file.
	Dir string

	mu       sync.Mutex
	cleanups map[string]func() // container ID -> onexit cancel
	pulls    sync.Map          // image ref -> *imagePull
}

// New builds an engine with an event log and port registry. A nil
// registerer disables metrics.
func New(logger zerolog.Logger, reg prometheus.Registerer) *Engine {
	e := &Engine{
		Log:    NewEventLog(),
		Ports:  NewPortRegistry(),
		Logger: logger,
		Dir:    ".",
	}
	if reg != nil {
		e.Metrics = NewMetrics(reg)
	}
	return e
}

// Up brings every service of the materialized topology up, wave by wave
// per StartOrder. On the first failure it emits stack.failing, tears down
// whatever already started, and returns the root cause.
func (e *Engine) Up(ctx context.Context, project string, res *materialize.Result) error {
	topo := res.Topology

	// build: specs survive loading and validation, but this engine only
	// runs pullable images.
	for _, name := range topo.ServiceNames() {
		if topo.Services[name].Image == "" {
			return RuntimeError.New("service %q has no image (build-only services cannot be started)", name)
		}
	}

	waves, err := resolve.StartOrder(topo)
	if err != nil {
		return err
	}

	if e.Ports != nil {
		var all []spec.PortMapping
		for _, name := range topo.ServiceNames() {
			all = append(all, res.Ports[name]...)
		}
		if err := e.Ports.Claim(project, all); err != nil {
			return err
		}
	}
	release := func() {
		if e.Ports != nil {
			e.Ports.Release(project)
		}
	}

	cli, err := Client()
	if err != nil {
		release()
		return DockerError.Wrap(err, "docker client")
	}
	if _, err := cli.Ping(ctx); err != nil {
		release()
		return DockerError.Wrap(err, "cannot connect to Docker daemon (is Docker running?)")
	}

	if err := ensureNetwork(ctx, cli, project); err != nil {
		release()
		return err
	}

	conditions := requiredConditions(topo)

	for _, wave := range waves {
		if err := e.startWave(ctx, cli, project, wave, res, conditions); err != nil {
			if ctx.Err() == nil {
				e.Log.Publish(Event{Type: EventStackFailing, Project: project, Error: err.Error()})
			}
			// Tear down with a fresh context; ctx may already be cancelled.
			e.Down(context.Background(), project, topo)
			return err
		}
	}

	e.Log.Publish(Event{Type: EventStackUp, Project: project})
	e.Logger.Info().Str("project", project).Int("services", len(topo.Services)).Msg("stack up")
	return nil
}

// startWave starts every service of one wave concurrently. The first
// failure cancels the remaining starts; only the root cause is returned.
func (e *Engine) startWave(ctx context.Context, cli *client.Client, project string, wave []string, res *materialize.Result, conditions map[string]spec.DependsOnCondition) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type serviceErr struct {
		name string
		err  error
	}

	var wg sync.WaitGroup
	errs := make(chan serviceErr, len(wave))

	for _, name := range wave {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := e.startService(ctx, cli, project, name, res, conditions[name]); err != nil {
				errs <- serviceErr{name: name, err: err}
			}
		}(name)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	var cause error
	for se := range errs {
		if cause == nil {
			cause = fmt.Errorf("service %q: %w", se.name, se.err)
			cancel() // abandon the rest of the wave
		}
		// Subsequent errors come from services cancelled by the first
		// failure; only the root cause is reported.
	}
	return cause
}

// startService pulls, creates, and starts one service, then waits for the
// strictest condition any dependent declared on it.
func (e *Engine) startService(ctx context.Context, cli *client.Client, project, name string, res *materialize.Result, cond spec.DependsOnCondition) error {
	svc := res.Topology.Services[name]
	logger := e.Logger.With().Str("project", project).Str("service", name).Logger()

	if err := e.pullImage(ctx, cli, project, svc.Image); err != nil {
		e.failService(project, name, err)
		return err
	}

	e.Log.Publish(Event{Type: EventServiceCreating, Project: project, Service: name, Image: svc.Image})
	id, err := createContainer(ctx, cli, containerSpec{
		project: project,
		name:    name,
		service: svc,
		ports:   res.Ports[name],
		mounts:  res.Mounts[name],
		dir:     e.Dir,
	})
	if err != nil {
		e.failService(project, name, err)
		return err
	}

	// Backup cleanup in case gantry dies without running Down (SIGKILL,
	// OOM, CI timeout). Cancelled once the container is removed normally.
	cancelOnexit, _ := onexit.OnExitF("docker rm -f %s", id)
	e.trackCleanup(id, func() { _ = cancelOnexit() })

	if err := cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		err = DockerError.Wrap(err, "start container")
		e.failService(project, name, err)
		return err
	}

	e.Log.Publish(Event{Type: EventServiceStarted, Project: project, Service: name, Image: svc.Image})
	if e.Metrics != nil {
		e.Metrics.ServicesStarted.Inc()
		e.Metrics.ServicesRunning.Inc()
	}
	logger.Info().Str("image", svc.Image).Msg("service started")

	switch cond {
	case spec.ConditionHealthy:
		probe, timeout := readyProbe(cli, id, svc, res.Ports[name])
		err := Poll(ctx, timeout, probe, func(err error) {
			logger.Debug().Err(err).Msg("not healthy yet")
		})
		if err != nil {
			err = RuntimeError.Wrap(err, "waiting for healthy")
			e.failService(project, name, err)
			return err
		}
		e.Log.Publish(Event{Type: EventServiceHealthy, Project: project, Service: name})
		logger.Info().Msg("service healthy")
	case spec.ConditionStarted:
		if err := runningProbe(cli, id)(ctx); err != nil {
			err = RuntimeError.Wrap(err, "container not running")
			e.failService(project, name, err)
			return err
		}
	}
	return nil
}

// readyProbe picks how to decide a service is healthy: the declared
// healthcheck when there is one, otherwise a TCP dial of the first
// published port, otherwise just the running state.
func readyProbe(cli *client.Client, containerID string, svc spec.Service, ports []spec.PortMapping) (Probe, time.Duration) {
	if svc.Healthcheck != nil && !svc.Healthcheck.Disable {
		return healthProbe(cli, containerID), healthTimeout(svc.Healthcheck)
	}
	for _, pm := range ports {
		if pm.Protocol == "tcp" && pm.HostPort != 0 {
			return tcpProbe(pm), defaultReadyTimeout
		}
	}
	return runningProbe(cli, containerID), defaultReadyTimeout
}

type imagePull struct {
	once sync.Once
	err  error
}

// pullImage fetches the image unless it is already present locally.
// Concurrent requests for the same reference share one pull.
func (e *Engine) pullImage(ctx context.Context, cli *client.Client, project, ref string) error {
	v, _ := e.pulls.LoadOrStore(ref, &imagePull{})
	p := v.(*imagePull)
	p.once.Do(func() {
		if _, _, err := cli.ImageInspectWithRaw(ctx, ref); err == nil {
			return // already local
		}
		e.Log.Publish(Event{Type: EventImagePulling, Project: project, Image: ref})
		rc, err := cli.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			p.err = DockerError.Wrap(err, "pull %s", ref)
			return
		}
		_, copyErr := io.Copy(io.Discard, rc)
		rc.Close()
		if copyErr != nil {
			p.err = DockerError.Wrap(copyErr, "pull %s", ref)
			return
		}
		e.Log.Publish(Event{Type: EventImagePulled, Project: project, Image: ref})
		if e.Metrics != nil {
			e.Metrics.ImagesPulled.Inc()
		}
	})
	return p.err
}

// Down stops and removes every container labelled with the project, in
// reverse dependency order when the topology is known, then removes the
// project network and releases its port claims. A nil topology still
// tears everything down, just without ordering guarantees.
func (e *Engine) Down(ctx context.Context, project string, topo *spec.Topology) error {
	cli, err := Client()
	if err != nil {
		return DockerError.Wrap(err, "docker client")
	}

	listed, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: projectFilter(project),
	})
	if err != nil {
		return DockerError.Wrap(err, "list containers")
	}

	byService := make(map[string]string, len(listed))
	for _, c := range listed {
		byService[c.Labels[labelService]] = c.ID
	}

	var firstErr error
	for _, name := range stopSequence(byService, topo) {
		id := byService[name]
		e.Log.Publish(Event{Type: EventServiceStopping, Project: project, Service: name})
		if err := stopAndRemove(cli, id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.cancelCleanup(id)
		e.Log.Publish(Event{Type: EventServiceStopped, Project: project, Service: name})
		if e.Metrics != nil {
			e.Metrics.ServicesRunning.Dec()
		}
		e.Logger.Info().Str("project", project).Str("service", name).Msg("service stopped")
	}

	removeNetwork(ctx, cli, project)
	if e.Ports != nil {
		e.Ports.Release(project)
	}
	e.Log.Publish(Event{Type: EventStackDown, Project: project})
	return firstErr
}

// stopSequence orders the running services for teardown: reverse
// dependency waves first, then anything the topology does not know about
// (e.g. leftovers from an older file) in name order.
func stopSequence(byService map[string]string, topo *spec.Topology) []string {
	var seq []string
	seen := make(map[string]bool, len(byService))

	if topo != nil {
		if waves, err := resolve.StopOrder(topo); err == nil {
			for _, wave := range waves {
				for _, name := range wave {
					if _, running := byService[name]; running {
						seq = append(seq, name)
						seen[name] = true
					}
				}
			}
		}
	}

	var rest []string
	for name := range byService {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(seq, rest...)
}

// ContainerStatus is one row of ps output.
type ContainerStatus struct {
	Service string
	Name    string
	Image   string
	State   string
	Status  string
}

// List returns the containers belonging to the project, sorted by service.
func (e *Engine) List(ctx context.Context, project string) ([]ContainerStatus, error) {
	cli, err := Client()
	if err != nil {
		return nil, DockerError.Wrap(err, "docker client")
	}

	listed, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: projectFilter(project),
	})
	if err != nil {
		return nil, DockerError.Wrap(err, "list containers")
	}

	out := make([]ContainerStatus, 0, len(listed))
	for _, c := range listed {
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		out = append(out, ContainerStatus{
			Service: c.Labels[labelService],
			Name:    name,
			Image:   c.Image,
			State:   c.State,
			Status:  c.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

func projectFilter(project string) filters.Args {
	return filters.NewArgs(filters.Arg("label", labelProject+"="+project))
}

func (e *Engine) failService(project, name string, err error) {
	e.Log.Publish(Event{Type: EventServiceFailed, Project: project, Service: name, Error: err.Error()})
	if e.Metrics != nil {
		e.Metrics.ServicesFailed.Inc()
	}
}

func (e *Engine) trackCleanup(id string, cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cleanups == nil {
		e.cleanups = make(map[string]func())
	}
	e.cleanups[id] = cancel
}

func (e *Engine) cancelCleanup(id string) {
	e.mu.Lock()
	cancel := e.cleanups[id]
	delete(e.cleanups, id)
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// requiredConditions computes, per service, the strictest condition any
// dependent places on it. Services nobody depends on are absent and are
// not waited for.
func requiredConditions(topo *spec.Topology) map[string]spec.DependsOnCondition {
	out := make(map[string]spec.DependsOnCondition)
	for _, svc := range topo.Services {
		for dep, cond := range svc.DependsOn {
			if out[dep] != spec.ConditionHealthy {
				out[dep] = cond
			}
		}
	}
	return out
}
