package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestTailLines_ReturnsLastN(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\nfour\n")

	lines, err := TailLines(path, 2, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"three", "four"}, lines)
}

func TestTailLines_FewerThanRequested(t *testing.T) {
	path := writeLog(t, "only\n")

	lines, err := TailLines(path, 10, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"only"}, lines)
}

func TestTailLines_MissingFile(t *testing.T) {
	_, err := TailLines(filepath.Join(t.TempDir(), "nope.log"), 10, 0)
	require.Error(t, err)
}

func TestLinesSince_FiltersByLeadingTimestamp(t *testing.T) {
	lines := []string{
		"2026-08-30 10:00:00 starting",
		"2026-08-30 10:00:01 listening on 4001",
		"2026-08-30 10:05:00 request served",
	}
	cutoff := time.Date(2026, 8, 30, 10, 1, 0, 0, time.UTC)

	got := LinesSince(lines, cutoff)
	require.Equal(t, []string{"2026-08-30 10:05:00 request served"}, got)
}

func TestLinesSince_UntimestampedLinesFollowHeader(t *testing.T) {
	lines := []string{
		"2026-08-30 10:00:00 old error",
		"  stack frame a",
		"2026-08-30 10:05:00 new error",
		"  stack frame b",
	}
	cutoff := time.Date(2026, 8, 30, 10, 1, 0, 0, time.UTC)

	got := LinesSince(lines, cutoff)
	require.Equal(t, []string{"2026-08-30 10:05:00 new error", "  stack frame b"}, got)
}
