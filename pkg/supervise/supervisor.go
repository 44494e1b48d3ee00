// Package supervise owns the lifecycle of application processes: spawn,
// record, stop with escalating fallbacks, orphan sweep. Processes are spawned
// detached in their own process group; the record file, not the parent-child
// relationship, is the handle on them.
package supervise

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/devstack/pkg/ports"
	"github.com/go-go-golems/devstack/pkg/specs"
	"github.com/go-go-golems/devstack/pkg/state"
)

var (
	// ErrSpawnFailed means the child never produced a PID.
	ErrSpawnFailed = errors.New("spawn failed")
	// ErrPortUnavailable means the app's declared port could not be freed.
	ErrPortUnavailable = errors.New("port unavailable")
)

const (
	AutoPortMin = 4000
	AutoPortMax = 4999
)

type Options struct {
	Root            string
	ShutdownTimeout time.Duration
}

type Supervisor struct {
	opts  Options
	ports *ports.Registry
}

func New(opts Options) *Supervisor {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return &Supervisor{opts: opts, ports: ports.New(opts.Root)}
}

// StartResult reports what Start did for one app.
type StartResult struct {
	Name           string `json:"name"`
	PID            int    `json:"pid"`
	Port           int    `json:"port,omitempty"`
	AlreadyRunning bool   `json:"already_running,omitempty"`
}

// Start brings the app up if it is not already running. A live record makes
// Start a no-op; a stale record is purged first.
func (s *Supervisor) Start(ctx context.Context, spec specs.AppSpec) (*StartResult, error) {
	if spec.Name == "" {
		return nil, errors.New("app spec missing name")
	}
	if spec.Command == "" {
		return nil, errors.Errorf("app %q missing command", spec.Name)
	}

	rec, err := state.LoadApp(s.opts.Root, spec.Name)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if rec.Alive() {
			log.Debug().Str("app", spec.Name).Int("pid", rec.PID).Msg("already running")
			return &StartResult{Name: spec.Name, PID: rec.PID, Port: rec.Port, AlreadyRunning: true}, nil
		}
		if err := state.RemoveApp(s.opts.Root, spec.Name); err != nil {
			return nil, err
		}
	}

	port, err := s.resolvePort(ctx, spec)
	if err != nil {
		return nil, err
	}

	command := spec.Command
	if port > 0 {
		command = InjectPortFlag(s.appDir(spec), command, port)
	}

	logFile, err := state.OpenAppLog(s.opts.Root, spec.Name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = logFile.Close() }()

	// #nosec G204 -- the command comes from the resolved project spec.
	cmd := exec.Command("bash", "-c", command)
	cmd.Dir = s.appDir(spec)
	cmd.Env = buildEnv(os.Environ(), spec.Env, port)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(ErrSpawnFailed, "app %q: %v", spec.Name, err)
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return nil, errors.Wrapf(ErrSpawnFailed, "app %q: no pid", spec.Name)
	}
	// Reap if we happen to outlive the child; the record is the real handle.
	go func() { _ = cmd.Wait() }()

	rec = &state.AppRecord{
		Name:      spec.Name,
		PID:       pid,
		Port:      port,
		Command:   command,
		Dir:       cmd.Dir,
		Env:       state.SanitizeEnv(spec.Env),
		LogPath:   state.AppLogPath(s.opts.Root, spec.Name),
		StartedAt: time.Now(),
		HealthURL: spec.HealthURL,
	}
	if err := state.SaveApp(s.opts.Root, rec); err != nil {
		return nil, err
	}

	if port > 0 {
		if err := state.PutRoute(s.opts.Root, spec.Name, state.RouteEntry{Port: port, OwnerPID: pid}); err != nil {
			return nil, err
		}
	}

	log.Info().Str("app", spec.Name).Int("pid", pid).Int("port", port).Msg("app started")
	return &StartResult{Name: spec.Name, PID: pid, Port: port}, nil
}

// resolvePort picks the app's port and guarantees it is actually free: a
// reservation is advisory, so liveness is re-checked at spawn time.
func (s *Supervisor) resolvePort(ctx context.Context, spec specs.AppSpec) (int, error) {
	var port int
	switch {
	case spec.Port.Fixed():
		port = spec.Port.Value
	case spec.Port.Auto:
		reserved, err := s.ports.GetReservation(spec.Name)
		if err != nil {
			return 0, err
		}
		if reserved > 0 && !s.ports.IsInUse(reserved) {
			port = reserved
		} else {
			port, err = s.ports.FindFree(AutoPortMin, AutoPortMax)
			if err != nil {
				return 0, errors.Wrapf(err, "app %q", spec.Name)
			}
		}
		if err := s.ports.SaveReservation(spec.Name, port); err != nil {
			return 0, err
		}
	default:
		return 0, nil
	}

	if s.ports.IsInUse(port) {
		log.Warn().Str("app", spec.Name).Int("port", port).Msg("port in use, force-freeing")
		if err := s.ports.Free(ctx, port); err != nil {
			return 0, errors.Wrapf(ErrPortUnavailable, "app %q port %d: %v", spec.Name, port, err)
		}
	}
	return port, nil
}

func (s *Supervisor) appDir(spec specs.AppSpec) string {
	if spec.Dir == "" {
		return s.opts.Root
	}
	if filepath.IsAbs(spec.Dir) {
		return spec.Dir
	}
	return filepath.Join(s.opts.Root, spec.Dir)
}

func buildEnv(base []string, extra map[string]string, port int) []string {
	out := append([]string{}, base...)
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	if port > 0 {
		out = append(out, fmt.Sprintf("PORT=%d", port))
	}
	return out
}

// Status reports the observed state of one app, including who actually holds
// its port so callers can surface a PID/port mismatch.
type Status struct {
	Name         string `json:"name"`
	Running      bool   `json:"running"`
	PID          int    `json:"pid,omitempty"`
	ResolvedPort int    `json:"resolved_port,omitempty"`
	PortOwnerPID int    `json:"port_owner_pid,omitempty"`
}

func (s *Supervisor) Status(spec specs.AppSpec) (*Status, error) {
	st := &Status{Name: spec.Name}

	rec, err := state.LoadApp(s.opts.Root, spec.Name)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Alive() {
		st.Running = true
		st.PID = rec.PID
		st.ResolvedPort = rec.Port
	}

	if st.ResolvedPort == 0 {
		switch {
		case spec.Port.Fixed():
			st.ResolvedPort = spec.Port.Value
		case spec.Port.Auto:
			reserved, err := s.ports.GetReservation(spec.Name)
			if err != nil {
				return nil, err
			}
			st.ResolvedPort = reserved
		}
	}

	if st.ResolvedPort > 0 {
		pids, err := s.ports.ListenerPIDs(st.ResolvedPort)
		if err == nil && len(pids) > 0 {
			st.PortOwnerPID = pids[0]
		}
	}
	return st, nil
}
