package proxy

import (
	"context"
	"net"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/devstack/pkg/state"
)

// StartDaemon re-executes the current binary as a detached gateway process,
// records its PID and port, and returns. Fire, record the handle on disk,
// disown: the daemon outlives this invocation and is only ever reached again
// through the proxy record.
func StartDaemon(root, host string) (*state.ProxyRecord, error) {
	if rec, err := state.LoadProxy(root); err != nil {
		return nil, err
	} else if rec != nil && state.ProcessAlive(rec.PID) {
		return rec, nil
	}

	port, err := FindListenPort()
	if err != nil {
		return nil, err
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "resolve executable")
	}

	logFile, err := state.OpenAppLog(root, "proxy")
	if err != nil {
		return nil, err
	}
	defer func() { _ = logFile.Close() }()

	// #nosec G204 -- re-executing ourselves.
	cmd := exec.Command(exe, "proxy", "run",
		"--root", root,
		"--proxy-host", host,
		"--port", strconv.Itoa(port),
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start proxy daemon")
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()

	rec := &state.ProxyRecord{PID: pid, Port: port, StartedAt: time.Now()}
	if err := state.SaveProxy(root, rec); err != nil {
		return nil, err
	}
	log.Info().Int("pid", pid).Int("port", port).Msg("gateway daemon started")
	return rec, nil
}

// StopDaemon signals the recorded daemon and clears the whole route table:
// the service directory only has meaning while its owning proxy is up.
func StopDaemon(ctx context.Context, root string) error {
	rec, err := state.LoadProxy(root)
	if err != nil {
		return err
	}

	if rec != nil && state.ProcessAlive(rec.PID) {
		_ = syscall.Kill(rec.PID, syscall.SIGTERM)

		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		deadline := time.Now().Add(3 * time.Second)
		for state.ProcessAlive(rec.PID) && time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
		if state.ProcessAlive(rec.PID) {
			_ = syscall.Kill(rec.PID, syscall.SIGKILL)
		}
		log.Info().Int("pid", rec.PID).Msg("gateway daemon stopped")
	}

	if err := state.RemoveProxy(root); err != nil {
		return err
	}
	return state.ClearRoutes(root)
}

// DaemonStatus reports whether a gateway is up. With no live record it falls
// back to checking whether something occupies the default port.
type DaemonStatus struct {
	Running   bool `json:"running"`
	PID       int  `json:"pid,omitempty"`
	Port      int  `json:"port,omitempty"`
	Heuristic bool `json:"heuristic,omitempty"`
}

func QueryDaemon(root string) (*DaemonStatus, error) {
	rec, err := state.LoadProxy(root)
	if err != nil {
		return nil, err
	}
	if rec != nil && state.ProcessAlive(rec.PID) {
		return &DaemonStatus{Running: true, PID: rec.PID, Port: rec.Port}, nil
	}
	if portOccupied(DefaultPort) {
		// No live record, but something holds the default port; most likely
		// a proxy whose record was lost.
		return &DaemonStatus{Running: true, Port: DefaultPort, Heuristic: true}, nil
	}
	return &DaemonStatus{}, nil
}

func portOccupied(port int) bool {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return true
	}
	_ = ln.Close()
	return false
}
