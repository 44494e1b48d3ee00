// Package containers drives Docker-backed dependencies: compose-managed
// services and standalone containers share one start/stop/status contract.
// Everything goes through the docker CLI so the package stays honest about
// what it owns: container names and port bindings, not the daemon.
package containers

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/devstack/pkg/compose"
	"github.com/go-go-golems/devstack/pkg/ports"
	"github.com/go-go-golems/devstack/pkg/specs"
	"github.com/go-go-golems/devstack/pkg/state"
)

var (
	ErrContainerCreateFailed = errors.New("container create failed")
	ErrNoFreePortForService  = errors.New("no free port for service")
	ErrReadinessTimeout      = errors.New("readiness check timed out")
)

// Runner executes docker commands. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

type cliRunner struct{}

func (cliRunner) Run(ctx context.Context, args ...string) (string, error) {
	// #nosec G204 -- args are built from resolved specs, not user input.
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return string(out), errors.Wrapf(err, "docker %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

type Options struct {
	Root        string
	ComposeFile string
	ProjectName string
}

type Driver struct {
	opts  Options
	run   Runner
	ports *ports.Registry
	cfile *compose.File
}

func New(opts Options) *Driver {
	if opts.ProjectName == "" {
		opts.ProjectName = "devstack"
	}
	return &Driver{opts: opts, run: cliRunner{}, ports: ports.New(opts.Root)}
}

// NewWithRunner is the test entry point.
func NewWithRunner(opts Options, run Runner) *Driver {
	d := New(opts)
	d.run = run
	return d
}

// ContainerState is the tri-state a target can be in.
type ContainerState string

const (
	StateRunning  ContainerState = "running"
	StateStopped  ContainerState = "stopped"
	StateNotFound ContainerState = "not-found"
)

// target unifies the two families behind one start/stop/status contract.
type target struct {
	logical   string // readiness/route/report key
	container string // docker container name
	service   string // compose service name, "" for standalone
	spec      *specs.ContainerSpec
	svc       *specs.ComposeServiceSpec
}

func (t target) readyCheck() (cmd string, timeout time.Duration) {
	if t.spec != nil {
		return t.spec.ReadyCheck, time.Duration(t.spec.TimeoutSeconds) * time.Second
	}
	if t.svc != nil {
		return t.svc.ReadyCheck, time.Duration(t.svc.TimeoutSeconds) * time.Second
	}
	return "", 0
}

func (d *Driver) targets(project *specs.Project) []target {
	var out []target
	for i := range project.Containers {
		c := &project.Containers[i]
		out = append(out, target{logical: c.Name, container: c.Name, spec: c})
	}
	for i := range project.Services {
		s := &project.Services[i]
		name := s.ContainerName
		if name == "" {
			// Compose v2 default naming.
			name = fmt.Sprintf("%s-%s-1", d.opts.ProjectName, s.Service)
		}
		out = append(out, target{logical: s.Service, container: name, service: s.Service, svc: s})
	}
	return out
}

func (d *Driver) inspectState(ctx context.Context, container string) ContainerState {
	out, err := d.run.Run(ctx, "inspect", "-f", "{{.State.Running}}", container)
	if err != nil {
		return StateNotFound
	}
	if strings.TrimSpace(out) == "true" {
		return StateRunning
	}
	return StateStopped
}

// containerPID returns the host PID of the container's init process, used as
// the route entry's owner so a dead container self-heals out of the table.
func (d *Driver) containerPID(ctx context.Context, container string) int {
	out, err := d.run.Run(ctx, "inspect", "-f", "{{.State.Pid}}", container)
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(out))
	return pid
}

// TargetResult reports what Start/Stop did for one container, per target so a
// partial failure in a multi-service startup is attributable.
type TargetResult struct {
	Name    string         `json:"name"`
	State   ContainerState `json:"state"`
	Action  string         `json:"action,omitempty"` // created | started | already-running | remapped | stopped
	Port    int            `json:"port,omitempty"`   // effective host port when remapped
	Ready   bool           `json:"ready,omitempty"`
	Warning string         `json:"warning,omitempty"`
	Err     string         `json:"error,omitempty"`
}

// Start brings every declared container up, remapping host-port conflicts on
// the fresh-create path, then gates on readiness checks. Readiness timeouts
// are warnings, not failures.
func (d *Driver) Start(ctx context.Context, project *specs.Project) ([]TargetResult, error) {
	targets := d.targets(project)
	if len(targets) == 0 {
		return nil, nil
	}

	states := map[string]ContainerState{}
	allRunning, allExist := true, true
	for _, t := range targets {
		st := d.inspectState(ctx, t.container)
		states[t.container] = st
		if st != StateRunning {
			allRunning = false
		}
		if st == StateNotFound {
			allExist = false
		}
	}

	results := map[string]*TargetResult{}
	for _, t := range targets {
		results[t.logical] = &TargetResult{Name: t.logical, State: states[t.container]}
	}

	switch {
	case allRunning:
		// Still wait on readiness: "running" is not "accepting connections".
		for _, t := range targets {
			results[t.logical].Action = "already-running"
		}
	case allExist:
		if err := d.startExisting(ctx, targets, states, results); err != nil {
			return collect(targets, results), err
		}
	default:
		if err := d.createFresh(ctx, project, targets, states, results); err != nil {
			return collect(targets, results), err
		}
	}

	for _, t := range targets {
		r := results[t.logical]
		if r.Err != "" {
			continue
		}
		if err := d.awaitReady(ctx, t); err != nil {
			if errors.Is(err, ErrReadinessTimeout) {
				r.Warning = err.Error()
				continue
			}
			r.Err = err.Error()
			continue
		}
		r.Ready = true
	}

	d.registerRoutes(ctx, project, results)
	return collect(targets, results), nil
}

// startExisting issues plain starts: cheaper than recreation when every
// container already exists.
func (d *Driver) startExisting(ctx context.Context, targets []target, states map[string]ContainerState, results map[string]*TargetResult) error {
	for _, t := range targets {
		r := results[t.logical]
		if states[t.container] == StateRunning {
			r.Action = "already-running"
			continue
		}
		if _, err := d.run.Run(ctx, "start", t.container); err != nil {
			r.Err = err.Error()
			return errors.Wrapf(err, "start container %q", t.container)
		}
		r.Action = "started"
		r.State = StateRunning
	}
	return nil
}

// createFresh is the bulk-create path with host-port conflict remapping: a
// service whose declared host port is held by a process outside our
// management gets created directly on a replacement port; siblings go through
// the normal bulk start untouched.
func (d *Driver) createFresh(ctx context.Context, project *specs.Project, targets []target, states map[string]ContainerState, results map[string]*TargetResult) error {
	var bulkServices []string

	for _, t := range targets {
		r := results[t.logical]
		if states[t.container] == StateRunning {
			r.Action = "already-running"
			continue
		}

		bindings, err := d.declaredBindings(t)
		if err != nil {
			r.Err = err.Error()
			return err
		}

		remaps, effective, err := d.planRemap(bindings, states[t.container])
		if err != nil {
			r.Err = err.Error()
			return err
		}

		if len(remaps) == 0 {
			if t.service != "" {
				bulkServices = append(bulkServices, t.service)
				r.Action = "created"
				continue
			}
			if err := d.runContainer(ctx, t, bindings); err != nil {
				r.Err = err.Error()
				return err
			}
			r.Action = "created"
			r.State = StateRunning
			continue
		}

		for declared, replacement := range remaps {
			log.Warn().Str("target", t.logical).Int("declared", declared).Int("replacement", replacement).
				Msg("host port conflict, remapping")
			r.Port = replacement
		}
		if err := d.runContainer(ctx, t, effective); err != nil {
			r.Err = err.Error()
			return err
		}
		r.Action = "remapped"
		r.State = StateRunning
	}

	if len(bulkServices) > 0 {
		args := append([]string{"compose", "-f", d.opts.ComposeFile, "-p", d.opts.ProjectName, "up", "-d"}, bulkServices...)
		if _, err := d.run.Run(ctx, args...); err != nil {
			for _, svc := range bulkServices {
				results[svc].Err = err.Error()
			}
			return errors.Wrapf(ErrContainerCreateFailed, "compose up: %v", err)
		}
		for _, svc := range bulkServices {
			results[svc].State = StateRunning
		}
	}
	return nil
}

// declaredBindings resolves a target's host-port bindings, consulting the
// compose file for compose-managed services.
func (d *Driver) declaredBindings(t target) ([]specs.PortMapping, error) {
	if t.spec != nil {
		return t.spec.Ports, nil
	}
	cf, err := d.composeFile()
	if err != nil {
		return nil, err
	}
	svc, ok := cf.Service(t.service)
	if !ok {
		return nil, errors.Errorf("service %q not in compose file", t.service)
	}
	var out []specs.PortMapping
	for _, b := range svc.PortBindings() {
		out = append(out, specs.PortMapping{Host: b.Host, Container: b.Container})
	}
	return out, nil
}

// runContainer creates one container directly with docker run, extracting
// image/env/volumes from the compose definition when the target is
// compose-managed.
func (d *Driver) runContainer(ctx context.Context, t target, bindings []specs.PortMapping) error {
	image := ""
	env := map[string]string{}
	var volumes []string

	if t.spec != nil {
		image = t.spec.Image
		env = t.spec.Env
		volumes = t.spec.Volumes
	} else {
		cf, err := d.composeFile()
		if err != nil {
			return err
		}
		svc, ok := cf.Service(t.service)
		if !ok {
			return errors.Errorf("service %q not in compose file", t.service)
		}
		image = svc.Image
		env = svc.Environment
		volumes = svc.Volumes
	}
	if image == "" {
		return errors.Wrapf(ErrContainerCreateFailed, "%q has no image", t.logical)
	}

	args := []string{"run", "-d", "--name", t.container}
	for _, b := range bindings {
		args = append(args, "-p", fmt.Sprintf("%d:%d", b.Host, b.Container))
	}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	for _, v := range volumes {
		args = append(args, "-v", v)
	}
	args = append(args, image)

	if _, err := d.run.Run(ctx, args...); err != nil {
		return errors.Wrapf(ErrContainerCreateFailed, "%q: %v", t.logical, err)
	}
	return nil
}

// Stop stops standalone containers first (fully ours, deterministic order),
// then delegates compose services to compose, directly stopping any container
// compose no longer tracks. Best-effort per target.
func (d *Driver) Stop(ctx context.Context, project *specs.Project) []TargetResult {
	var results []TargetResult

	for i := range project.Containers {
		c := &project.Containers[i]
		r := TargetResult{Name: c.Name, Action: "stopped"}
		if _, err := d.run.Run(ctx, "stop", c.Name); err != nil {
			r.Err = err.Error()
		}
		_ = state.DeleteRoute(d.opts.Root, c.Name)
		results = append(results, r)
	}

	if len(project.Services) > 0 {
		var svcNames []string
		for _, s := range project.Services {
			svcNames = append(svcNames, s.Service)
		}
		args := append([]string{"compose", "-f", d.opts.ComposeFile, "-p", d.opts.ProjectName, "stop"}, svcNames...)
		_, composeErr := d.run.Run(ctx, args...)

		for _, t := range d.targets(project) {
			if t.service == "" {
				continue
			}
			r := TargetResult{Name: t.logical, Action: "stopped"}
			if composeErr != nil {
				r.Err = composeErr.Error()
			}
			// A remapped service was launched with docker run, outside
			// compose's label tracking, so compose stop does not see it.
			if d.inspectState(ctx, t.container) == StateRunning {
				if _, err := d.run.Run(ctx, "stop", t.container); err != nil && r.Err == "" {
					r.Err = err.Error()
				}
			}
			results = append(results, r)
		}
	}
	return results
}

// Status reports the tri-state of each declared target plus best-effort
// published port info.
func (d *Driver) Status(ctx context.Context, project *specs.Project) []TargetResult {
	var results []TargetResult
	for _, t := range d.targets(project) {
		r := TargetResult{Name: t.logical, State: d.inspectState(ctx, t.container)}
		if r.State == StateRunning {
			if port := d.publishedPort(ctx, t.container); port > 0 {
				r.Port = port
			}
		}
		results = append(results, r)
	}
	return results
}

func (d *Driver) publishedPort(ctx context.Context, container string) int {
	out, err := d.run.Run(ctx, "port", container)
	if err != nil {
		return 0
	}
	// docker port output: "5432/tcp -> 0.0.0.0:15432"
	for _, line := range strings.Split(out, "\n") {
		_, addr, ok := strings.Cut(line, "->")
		if !ok {
			continue
		}
		idx := strings.LastIndex(addr, ":")
		if idx < 0 {
			continue
		}
		if p, err := strconv.Atoi(strings.TrimSpace(addr[idx+1:])); err == nil {
			return p
		}
	}
	return 0
}

// registerRoutes writes route entries for standalone containers that front an
// HTTP API, keyed on the container's init PID so a dead container self-heals
// out of the table.
func (d *Driver) registerRoutes(ctx context.Context, project *specs.Project, results map[string]*TargetResult) {
	for i := range project.Containers {
		c := &project.Containers[i]
		if !c.Route {
			continue
		}
		r := results[c.Name]
		if r == nil || r.Err != "" {
			continue
		}
		port := r.Port
		if port == 0 && len(c.Ports) > 0 {
			port = c.Ports[0].Host
		}
		pid := d.containerPID(ctx, c.Name)
		if port == 0 || pid == 0 {
			continue
		}
		if err := state.PutRoute(d.opts.Root, c.Name, state.RouteEntry{Port: port, OwnerPID: pid}); err != nil {
			log.Warn().Str("container", c.Name).Err(err).Msg("route registration failed")
		}
	}
}

func (d *Driver) composeFile() (*compose.File, error) {
	if d.cfile != nil {
		return d.cfile, nil
	}
	if d.opts.ComposeFile == "" {
		return nil, errors.New("no compose file configured")
	}
	cf, err := compose.Load(d.opts.ComposeFile)
	if err != nil {
		return nil, err
	}
	d.cfile = cf
	return cf, nil
}

func collect(targets []target, results map[string]*TargetResult) []TargetResult {
	out := make([]TargetResult, 0, len(targets))
	for _, t := range targets {
		out = append(out, *results[t.logical])
	}
	return out
}
