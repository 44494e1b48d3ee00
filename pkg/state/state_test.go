package state

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppRecord_SaveLoadRemove(t *testing.T) {
	root := t.TempDir()

	rec := &AppRecord{
		Name:      "web",
		PID:       os.Getpid(),
		Port:      4001,
		Command:   "npm run dev",
		LogPath:   AppLogPath(root, "web"),
		StartedAt: time.Now(),
	}
	require.NoError(t, SaveApp(root, rec))

	got, err := LoadApp(root, "web")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "web", got.Name)
	require.Equal(t, 4001, got.Port)
	require.True(t, got.Alive())

	require.NoError(t, RemoveApp(root, "web"))
	got, err = LoadApp(root, "web")
	require.NoError(t, err)
	require.Nil(t, got)

	// Removing again is not an error.
	require.NoError(t, RemoveApp(root, "web"))
}

func TestListApps_SkipsUnparseableFiles(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, SaveApp(root, &AppRecord{Name: "api", PID: 1234, Command: "true"}))
	require.NoError(t, os.WriteFile(filepath.Join(AppsDir(root), "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(AppsDir(root), "notes.txt"), []byte("x"), 0o644))

	recs, err := ListApps(root)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "api", recs[0].Name)
}

func TestListApps_EmptyWithoutStateDir(t *testing.T) {
	recs, err := ListApps(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestRoutes_PruneDeadOwners(t *testing.T) {
	root := t.TempDir()

	// A process that has already exited and been reaped.
	cmd := exec.Command("bash", "-c", "true")
	require.NoError(t, cmd.Run())
	deadPID := cmd.Process.Pid

	require.NoError(t, PutRoute(root, "web", RouteEntry{Port: 4001, OwnerPID: os.Getpid()}))
	require.NoError(t, PutRoute(root, "api", RouteEntry{Port: 4002, OwnerPID: deadPID}))

	m, err := LoadRoutes(root)
	require.NoError(t, err)
	require.Len(t, m, 1)
	require.Equal(t, 4001, m["web"].Port)

	// The pruned entry is gone from disk too, not just this read.
	_, ok, err := LookupRoute(root, "api")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRoutes_DeleteAndClear(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, PutRoute(root, "web", RouteEntry{Port: 4001, OwnerPID: os.Getpid()}))
	require.NoError(t, DeleteRoute(root, "web"))
	require.NoError(t, DeleteRoute(root, "web"))

	m, err := LoadRoutes(root)
	require.NoError(t, err)
	require.Empty(t, m)

	require.NoError(t, PutRoute(root, "web", RouteEntry{Port: 4001, OwnerPID: os.Getpid()}))
	require.NoError(t, ClearRoutes(root))
	m, err = LoadRoutes(root)
	require.NoError(t, err)
	require.Empty(t, m)
}

func TestReservations_RoundTrip(t *testing.T) {
	root := t.TempDir()

	port, err := GetReservation(root, "web")
	require.NoError(t, err)
	require.Zero(t, port)

	require.NoError(t, SaveReservation(root, "web", 4321))
	port, err = GetReservation(root, "web")
	require.NoError(t, err)
	require.Equal(t, 4321, port)

	require.NoError(t, ClearReservation(root, "web"))
	port, err = GetReservation(root, "web")
	require.NoError(t, err)
	require.Zero(t, port)
}

func TestOpenAppLog_Appends(t *testing.T) {
	root := t.TempDir()

	f, err := OpenAppLog(root, "web")
	require.NoError(t, err)
	_, err = f.WriteString("first\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenAppLog(root, "web")
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b, err := os.ReadFile(AppLogPath(root, "web"))
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(b))
}

func TestProxyRecord_RoundTrip(t *testing.T) {
	root := t.TempDir()

	rec, err := LoadProxy(root)
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, SaveProxy(root, &ProxyRecord{PID: os.Getpid(), Port: 8890, StartedAt: time.Now()}))
	rec, err = LoadProxy(root)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 8890, rec.Port)

	require.NoError(t, RemoveProxy(root))
	rec, err = LoadProxy(root)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestProcessAlive(t *testing.T) {
	require.True(t, ProcessAlive(os.Getpid()))
	require.False(t, ProcessAlive(0))
	require.False(t, ProcessAlive(-1))

	cmd := exec.Command("bash", "-c", "true")
	require.NoError(t, cmd.Run())
	require.False(t, ProcessAlive(cmd.Process.Pid))
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, SaveReservation(root, "web", 4001))
	require.NoError(t, SaveReservation(root, "web", 4002))

	entries, err := os.ReadDir(StateDir(root))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ports.json", entries[0].Name())
}
