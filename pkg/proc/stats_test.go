package proc

import (
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("reads /proc")
	}
}

func TestReadStats_Self(t *testing.T) {
	requireLinux(t)

	tracker := NewCPUTracker()
	s, err := ReadStats(os.Getpid(), tracker)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), s.PID)
	require.Greater(t, s.MemoryMB, int64(0))
	require.Greater(t, s.Threads, 0)
	// First sample has no delta to compute against.
	require.Equal(t, 0.0, s.CPUPercent)

	time.Sleep(50 * time.Millisecond)
	s2, err := ReadStats(os.Getpid(), tracker)
	require.NoError(t, err)
	require.GreaterOrEqual(t, s2.CPUPercent, 0.0)
}

func TestReadStats_ExitedProcess(t *testing.T) {
	requireLinux(t)

	cmd := exec.Command("bash", "-c", "true")
	require.NoError(t, cmd.Run())

	_, err := ReadStats(cmd.Process.Pid, NewCPUTracker())
	require.Error(t, err)
}

func TestReadAllStats_SkipsExited(t *testing.T) {
	requireLinux(t)

	cmd := exec.Command("bash", "-c", "true")
	require.NoError(t, cmd.Run())

	stats, err := ReadAllStats([]int{os.Getpid(), cmd.Process.Pid}, NewCPUTracker())
	require.NoError(t, err)
	require.Contains(t, stats, os.Getpid())
	require.NotContains(t, stats, cmd.Process.Pid)
}

func TestStartTime_Self(t *testing.T) {
	requireLinux(t)

	started, err := StartTime(os.Getpid())
	require.NoError(t, err)
	require.True(t, started.Before(time.Now()))
	require.True(t, started.After(time.Now().Add(-24*time.Hour)))
}

func TestCPUTracker_CleanupStale(t *testing.T) {
	requireLinux(t)

	tracker := NewCPUTracker()
	_, err := ReadStats(os.Getpid(), tracker)
	require.NoError(t, err)

	tracker.CleanupStale(nil)
	s, err := ReadStats(os.Getpid(), tracker)
	require.NoError(t, err)
	require.Equal(t, 0.0, s.CPUPercent)
}
