package state

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

// ProxyRecord is the gateway daemon's own handle: its PID and the port it
// bound. Written by `proxy start`, read by `proxy stop`/`proxy status`.
type ProxyRecord struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

func SaveProxy(root string, rec *ProxyRecord) error {
	if rec == nil {
		return errors.New("nil proxy record")
	}
	return saveJSON(proxyPath(root), rec)
}

// LoadProxy returns nil (no error) when no daemon record exists.
func LoadProxy(root string) (*ProxyRecord, error) {
	var rec ProxyRecord
	err := loadJSON(proxyPath(root), &rec)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read proxy record")
	}
	return &rec, nil
}

func RemoveProxy(root string) error {
	err := os.Remove(proxyPath(root))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove proxy record")
	}
	return nil
}
