package containers

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/devstack/pkg/specs"
)

// remapScanLimit bounds the upward scan for a replacement host port.
const remapScanLimit = 200

// planRemap detects declared host ports held by processes outside our
// management and picks replacements. A port is a conflict when it is in use
// while the target container itself is not the one running; a port held by a
// container we already know about is not a conflict. Non-conflicting bindings
// are carried through unchanged.
func (d *Driver) planRemap(bindings []specs.PortMapping, st ContainerState) (map[int]int, []specs.PortMapping, error) {
	remaps := map[int]int{}
	out := make([]specs.PortMapping, 0, len(bindings))

	for _, b := range bindings {
		if b.Host <= 0 || st == StateRunning || !d.ports.IsInUse(b.Host) {
			out = append(out, b)
			continue
		}
		replacement, err := d.findReplacement(b.Host)
		if err != nil {
			return nil, nil, err
		}
		remaps[b.Host] = replacement
		out = append(out, specs.PortMapping{Host: replacement, Container: b.Container})
	}
	return remaps, out, nil
}

// findReplacement scans upward from the declared port, bounded.
func (d *Driver) findReplacement(declared int) (int, error) {
	for p := declared + 1; p <= declared+remapScanLimit && p <= 65535; p++ {
		if !d.ports.IsInUse(p) {
			return p, nil
		}
	}
	return 0, errors.Wrapf(ErrNoFreePortForService, "no replacement above %d", declared)
}
