// Package ports answers "who holds this port", force-frees listeners, finds
// free ports, and persists which port was chosen for a logical service.
package ports

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/devstack/pkg/state"
)

// ErrNoFreePort is returned when FindFree exhausts its range.
var ErrNoFreePort = errors.New("no free port in range")

// Registry probes live port state and persists reservations under Root.
type Registry struct {
	Root string
}

func New(root string) *Registry {
	return &Registry{Root: root}
}

// IsInUse reports whether some process is listening on the TCP port. The lsof
// query is scoped to LISTEN state so an unrelated outbound connection sharing
// the local port number does not count.
func (r *Registry) IsInUse(port int) bool {
	pids, err := r.ListenerPIDs(port)
	if err == nil {
		return len(pids) > 0
	}
	// No lsof available: a failed bind means something holds the port.
	ln, bindErr := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if bindErr != nil {
		return true
	}
	_ = ln.Close()
	return false
}

// ListenerPIDs returns the PIDs listening on the TCP port.
func (r *Registry) ListenerPIDs(port int) ([]int, error) {
	// #nosec G204 -- port is an integer.
	out, err := exec.Command("lsof", "-nP", "-iTCP:"+strconv.Itoa(port), "-sTCP:LISTEN", "-t").Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) == 0 {
			// lsof exits 1 with no output when nothing matches.
			return nil, nil
		}
		return nil, errors.Wrap(err, "lsof")
	}
	var pids []int
	for _, line := range strings.Fields(string(out)) {
		pid, convErr := strconv.Atoi(line)
		if convErr == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// Free force-terminates every process listening on the port and waits briefly
// for the socket to be released. Absence of a listener is success.
func (r *Registry) Free(ctx context.Context, port int) error {
	pids, err := r.ListenerPIDs(port)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		return nil
	}
	for _, pid := range pids {
		log.Debug().Int("port", port).Int("pid", pid).Msg("force-freeing port")
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}

	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for r.IsInUse(port) {
		if time.Now().After(deadline) {
			return errors.Errorf("port %d still in use after kill", port)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// FindFree returns a port in [min,max] that accepts a bind. Random probes
// first (cheap for large ranges), then a linear sweep; ErrNoFreePort when the
// whole range is taken.
func (r *Registry) FindFree(min, max int) (int, error) {
	if min <= 0 || max < min {
		return 0, errors.Errorf("invalid port range [%d-%d]", min, max)
	}

	span := max - min + 1
	probes := 32
	if span < probes {
		probes = span
	}
	for i := 0; i < probes; i++ {
		p := min + rand.Intn(span)
		if bindable(p) {
			return p, nil
		}
	}
	for p := min; p <= max; p++ {
		if bindable(p) {
			return p, nil
		}
	}
	return 0, errors.Wrapf(ErrNoFreePort, "[%d-%d]", min, max)
}

func bindable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// Reservations are stored in the shared ports table; they are advisory only.

func (r *Registry) SaveReservation(name string, port int) error {
	return state.SaveReservation(r.Root, name, port)
}

func (r *Registry) GetReservation(name string) (int, error) {
	return state.GetReservation(r.Root, name)
}

func (r *Registry) ClearReservation(name string) error {
	return state.ClearReservation(r.Root, name)
}
