package state

import (
	"os"

	"github.com/pkg/errors"
)

// RouteEntry maps a logical service name to the port currently serving it.
// OwnerPID is whichever process bound the service to that port; an entry whose
// owner is dead is stale and is dropped on the next read, so ungraceful
// termination never leaves a dangling route.
type RouteEntry struct {
	Port     int `json:"port"`
	OwnerPID int `json:"owner_pid"`
}

// LoadRoutes reads the shared route table and prunes entries whose owner PID
// is no longer alive. When anything was pruned the table is rewritten, so the
// registry self-heals without explicit deregistration.
func LoadRoutes(root string) (map[string]RouteEntry, error) {
	m := map[string]RouteEntry{}
	err := loadJSON(routesPath(root), &m)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]RouteEntry{}, nil
		}
		return nil, errors.Wrap(err, "read route table")
	}

	pruned := false
	for name, e := range m {
		if !ProcessAlive(e.OwnerPID) {
			delete(m, name)
			pruned = true
		}
	}
	if pruned {
		if err := saveJSON(routesPath(root), m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LookupRoute resolves a logical name, observing the same staleness rules as
// LoadRoutes. The second return is false for unknown or pruned names.
func LookupRoute(root, name string) (RouteEntry, bool, error) {
	m, err := LoadRoutes(root)
	if err != nil {
		return RouteEntry{}, false, err
	}
	e, ok := m[name]
	return e, ok, nil
}

func PutRoute(root, name string, e RouteEntry) error {
	m, err := LoadRoutes(root)
	if err != nil {
		return err
	}
	m[name] = e
	return saveJSON(routesPath(root), m)
}

func DeleteRoute(root, name string) error {
	m, err := LoadRoutes(root)
	if err != nil {
		return err
	}
	if _, ok := m[name]; !ok {
		return nil
	}
	delete(m, name)
	return saveJSON(routesPath(root), m)
}

// ClearRoutes drops the whole table. Used when the owning proxy goes down:
// the service directory only has meaning while the proxy is up.
func ClearRoutes(root string) error {
	err := os.Remove(routesPath(root))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove route table")
	}
	return nil
}
