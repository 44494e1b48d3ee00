package state

import (
	"os"

	"github.com/pkg/errors"
)

// Port reservations record which port was dynamically chosen for an app. A
// reservation is advisory: nothing holds the socket, so callers re-check
// liveness at spawn time.

func loadPorts(root string) (map[string]int, error) {
	m := map[string]int{}
	err := loadJSON(portsPath(root), &m)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, errors.Wrap(err, "read ports table")
	}
	return m, nil
}

func SaveReservation(root, name string, port int) error {
	m, err := loadPorts(root)
	if err != nil {
		return err
	}
	m[name] = port
	return saveJSON(portsPath(root), m)
}

// GetReservation returns 0 when no reservation exists.
func GetReservation(root, name string) (int, error) {
	m, err := loadPorts(root)
	if err != nil {
		return 0, err
	}
	return m[name], nil
}

func ClearReservation(root, name string) error {
	m, err := loadPorts(root)
	if err != nil {
		return err
	}
	if _, ok := m[name]; !ok {
		return nil
	}
	delete(m, name)
	return saveJSON(portsPath(root), m)
}
