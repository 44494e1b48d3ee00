// Package proc reads per-process statistics from /proc for status display.
package proc

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Stats holds one sample for a supervised process.
type Stats struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   int64   `json:"memory_mb"` // resident set, megabytes
	State      string  `json:"state"`     // R, S, D, Z, T
	Threads    int     `json:"threads"`
}

// procStat holds the /proc/[pid]/stat fields the sampler needs.
type procStat struct {
	utime     uint64
	stime     uint64
	startTime uint64 // jiffies since boot
	state     byte
	threads   int
	rss       int64 // pages
}

// cpuSnapshot stores the previous sample for CPU delta calculation.
type cpuSnapshot struct {
	utime     uint64
	stime     uint64
	timestamp time.Time
}

// CPUTracker computes CPU percentages between successive samples.
type CPUTracker struct {
	snapshots map[int]cpuSnapshot
}

func NewCPUTracker() *CPUTracker {
	return &CPUTracker{snapshots: make(map[int]cpuSnapshot)}
}

// ReadStats samples one PID. With a non-nil tracker, CPUPercent reflects the
// delta since the previous ReadStats call for the same PID; the first sample
// reports zero.
func ReadStats(pid int, tracker *CPUTracker) (*Stats, error) {
	if pid <= 0 {
		return nil, errors.New("invalid pid")
	}

	ps, err := readProcStat(pid)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		PID:      pid,
		MemoryMB: ps.rss * int64(os.Getpagesize()) / (1024 * 1024),
		State:    string(ps.state),
		Threads:  ps.threads,
	}

	if tracker != nil {
		now := time.Now()
		total := ps.utime + ps.stime
		if prev, ok := tracker.snapshots[pid]; ok {
			elapsed := now.Sub(prev.timestamp).Seconds()
			if elapsed > 0 {
				// jiffies to seconds at the standard 100 Hz
				cpuSeconds := float64(total-prev.utime-prev.stime) / 100.0
				stats.CPUPercent = (cpuSeconds / elapsed) * 100.0
			}
		}
		tracker.snapshots[pid] = cpuSnapshot{utime: ps.utime, stime: ps.stime, timestamp: now}
	}

	return stats, nil
}

// ReadAllStats samples every PID in the list, skipping processes that exited
// between listing and sampling.
func ReadAllStats(pids []int, tracker *CPUTracker) (map[int]*Stats, error) {
	result := make(map[int]*Stats)
	for _, pid := range pids {
		stats, err := ReadStats(pid, tracker)
		if err != nil {
			continue
		}
		result[pid] = stats
	}
	return result, nil
}

// CleanupStale drops snapshots for PIDs no longer active.
func (t *CPUTracker) CleanupStale(activePIDs []int) {
	active := make(map[int]bool, len(activePIDs))
	for _, pid := range activePIDs {
		active[pid] = true
	}
	for pid := range t.snapshots {
		if !active[pid] {
			delete(t.snapshots, pid)
		}
	}
}

// StartTime returns when the process started, derived from its stat entry
// and the system boot time.
func StartTime(pid int) (time.Time, error) {
	ps, err := readProcStat(pid)
	if err != nil {
		return time.Time{}, err
	}
	boot, err := bootTime()
	if err != nil {
		return time.Time{}, err
	}
	return boot.Add(time.Duration(ps.startTime/100) * time.Second), nil
}

func readProcStat(pid int) (*procStat, error) {
	path := filepath.Join("/proc", strconv.Itoa(pid), "stat")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read stat file")
	}

	// The comm field can hold spaces and parens; parse from the last ')'.
	content := string(data)
	closeParen := strings.LastIndex(content, ")")
	if closeParen < 0 {
		return nil, errors.New("malformed stat file")
	}

	fields := strings.Fields(strings.TrimSpace(content[closeParen+1:]))
	if len(fields) < 22 {
		return nil, errors.Errorf("malformed stat file: %d fields", len(fields))
	}

	// After comm: 0 state, 11 utime, 12 stime, 17 num_threads,
	// 19 starttime, 21 rss.
	ps := &procStat{state: fields[0][0]}

	if ps.utime, err = strconv.ParseUint(fields[11], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse utime")
	}
	if ps.stime, err = strconv.ParseUint(fields[12], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse stime")
	}
	if ps.threads, err = strconv.Atoi(fields[17]); err != nil {
		return nil, errors.Wrap(err, "parse num_threads")
	}
	if ps.startTime, err = strconv.ParseUint(fields[19], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse starttime")
	}
	if ps.rss, err = strconv.ParseInt(fields[21], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse rss")
	}

	return ps, nil
}

func bootTime() (time.Time, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return time.Time{}, errors.Wrap(err, "open /proc/stat")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "btime ") {
			parts := strings.Fields(line)
			if len(parts) < 2 {
				continue
			}
			btime, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return time.Time{}, errors.Wrap(err, "parse btime")
			}
			return time.Unix(btime, 0), nil
		}
	}
	return time.Time{}, errors.New("btime not found in /proc/stat")
}
