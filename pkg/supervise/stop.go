package supervise

import (
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/devstack/pkg/specs"
	"github.com/go-go-golems/devstack/pkg/state"
)

// Stop brings the app down through an ordered chain of fallbacks: signal the
// recorded process group, pattern-kill orphans, and finally force-free the
// app's port. Every step but the record purge is best-effort; the goal is
// maximal cleanup, not strict step success. Stop never errors just because
// there was nothing to stop.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	rec, err := state.LoadApp(s.opts.Root, name)
	if err != nil {
		return err
	}

	stopped := false
	if rec != nil && rec.Alive() {
		if err := terminateGroup(ctx, rec.PID, s.opts.ShutdownTimeout); err != nil {
			log.Warn().Str("app", name).Int("pid", rec.PID).Err(err).Msg("group termination incomplete")
		} else {
			stopped = true
		}
	}

	if rec != nil && !state.ProcessAlive(rec.PID) {
		if err := state.RemoveApp(s.opts.Root, name); err != nil {
			return err
		}
	}

	// A process that re-parented away from the recorded group survives the
	// signal above; match it by its original command line.
	if !stopped && rec != nil {
		patternKill(rec.Command)
	}

	// Last resort: whatever the bookkeeping says, the port must come free.
	port := 0
	if rec != nil {
		port = rec.Port
	}
	if port == 0 {
		if reserved, resErr := s.ports.GetReservation(name); resErr == nil {
			port = reserved
		}
	}
	if port > 0 && s.ports.IsInUse(port) {
		if err := s.ports.Free(ctx, port); err != nil {
			log.Warn().Str("app", name).Int("port", port).Err(err).Msg("could not free port")
		}
	}

	if err := s.ports.ClearReservation(name); err != nil {
		return err
	}
	if err := state.DeleteRoute(s.opts.Root, name); err != nil {
		return err
	}

	if rec != nil && state.ProcessAlive(rec.PID) {
		return errors.Errorf("app %q: pid %d survived stop", name, rec.PID)
	}
	log.Info().Str("app", name).Msg("app stopped")
	return nil
}

// StopAll stops every app named in the spec list, then sweeps leftover
// records on disk. The sweep catches apps removed from configuration while
// still running and runs even with an empty spec list.
func (s *Supervisor) StopAll(ctx context.Context, appSpecs []specs.AppSpec) error {
	var lastErr error
	seen := map[string]bool{}
	for _, spec := range appSpecs {
		seen[spec.Name] = true
		if err := s.Stop(ctx, spec.Name); err != nil {
			log.Warn().Str("app", spec.Name).Err(err).Msg("stop failed")
			lastErr = err
		}
	}

	leftovers, err := state.ListApps(s.opts.Root)
	if err != nil {
		return err
	}
	for _, rec := range leftovers {
		if seen[rec.Name] {
			continue
		}
		log.Info().Str("app", rec.Name).Msg("sweeping orphaned record")
		if err := s.Stop(ctx, rec.Name); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// terminateGroup signals the process group with SIGTERM, polls for exit up to
// timeout, then escalates to SIGKILL (group first, pid directly as fallback).
func terminateGroup(ctx context.Context, pid int, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}
	pgid, pgErr := syscall.Getpgid(pid)
	if pgErr == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}

	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()

	deadline := time.Now().Add(timeout)
	for state.ProcessAlive(pid) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if !state.ProcessAlive(pid) {
		return nil
	}

	if pgErr == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)

	killDeadline := time.Now().Add(2 * time.Second)
	for state.ProcessAlive(pid) && time.Now().Before(killDeadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if state.ProcessAlive(pid) {
		return errors.Errorf("pid %d did not exit", pid)
	}
	return nil
}

// serverMarkers are command substrings that identify long-lived dev server
// processes worth pattern-killing when the recorded PID is useless.
var serverMarkers = []string{
	"next dev",
	"next-server",
	"vite",
	"astro dev",
	"ng serve",
	"nodemon",
	"webpack",
	"uvicorn",
	"flask run",
	"rails server",
	"air",
}

// patternKill force-kills processes whose command line matches a marker that
// also appears in the original start command. A failed pkill must not abort
// the stop sequence.
func patternKill(command string) {
	for _, marker := range serverMarkers {
		if !strings.Contains(command, marker) {
			continue
		}
		// #nosec G204 -- markers come from a static table.
		if err := exec.Command("pkill", "-9", "-f", marker).Run(); err == nil {
			log.Debug().Str("pattern", marker).Msg("pattern-killed orphan")
		}
	}
}
