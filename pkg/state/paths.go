// Package state owns every piece of persisted runtime state: per-app process
// records, the port-reservation table, the shared route table, and the proxy
// daemon's own record. All tables live under <root>/.devstack and are updated
// with write-temp-then-rename replacement so concurrent invocations may see a
// stale table but never a corrupt one.
package state

import "path/filepath"

const (
	StateDirName = ".devstack"
	AppsDirName  = "apps"
	LogsDirName  = "logs"

	portsFilename  = "ports.json"
	routesFilename = "routes.json"
	proxyFilename  = "proxy.json"
)

func StateDir(root string) string {
	return filepath.Join(root, StateDirName)
}

func AppsDir(root string) string {
	return filepath.Join(root, StateDirName, AppsDirName)
}

func LogsDir(root string) string {
	return filepath.Join(root, StateDirName, LogsDirName)
}

// AppLogPath is the append-only log stream for one app. It is never truncated
// on start so history survives restarts.
func AppLogPath(root, name string) string {
	return filepath.Join(LogsDir(root), name+".log")
}

func appRecordPath(root, name string) string {
	return filepath.Join(AppsDir(root), name+".json")
}

func portsPath(root string) string {
	return filepath.Join(StateDir(root), portsFilename)
}

func routesPath(root string) string {
	return filepath.Join(StateDir(root), routesFilename)
}

func proxyPath(root string) string {
	return filepath.Join(StateDir(root), proxyFilename)
}
