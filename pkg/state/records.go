package state

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// AppRecord is the persisted handle on one application process. The record is
// the source of truth: a record with a live PID means the app is running, a
// record with a dead PID is stale and must be purged before being trusted.
type AppRecord struct {
	Name      string            `json:"name"`
	PID       int               `json:"pid"`
	Port      int               `json:"port,omitempty"`
	Command   string            `json:"command"`
	Dir       string            `json:"dir,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	LogPath   string            `json:"log_path"`
	StartedAt time.Time         `json:"started_at"`
	HealthURL string            `json:"health_url,omitempty"`
}

// Alive reports whether the recorded PID still refers to a live process.
func (r *AppRecord) Alive() bool {
	return r != nil && ProcessAlive(r.PID)
}

func SaveApp(root string, rec *AppRecord) error {
	if rec == nil || rec.Name == "" {
		return errors.New("app record missing name")
	}
	return saveJSON(appRecordPath(root, rec.Name), rec)
}

// LoadApp returns nil (no error) when no record exists.
func LoadApp(root, name string) (*AppRecord, error) {
	var rec AppRecord
	err := loadJSON(appRecordPath(root, name), &rec)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read app record %q", name)
	}
	return &rec, nil
}

func RemoveApp(root, name string) error {
	err := os.Remove(appRecordPath(root, name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove app record %q", name)
	}
	return nil
}

// ListApps returns every persisted app record, including stale ones. Callers
// decide whether a dead PID means "purge" or "report".
func ListApps(root string) ([]*AppRecord, error) {
	entries, err := os.ReadDir(AppsDir(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read apps dir")
	}

	var recs []*AppRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		rec, err := LoadApp(root, name)
		if err != nil {
			// A half-written or foreign file must not block the sweep.
			continue
		}
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// OpenAppLog opens the app's log stream for appending, creating it (and the
// logs dir) as needed. Existing content is preserved.
func OpenAppLog(root, name string) (*os.File, error) {
	if err := os.MkdirAll(LogsDir(root), 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir logs dir")
	}
	path := AppLogPath(root, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log %s", filepath.Base(path))
	}
	return f, nil
}
