package state

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// TailLines returns up to tailLines lines from the end of the file, reading at
// most maxBytes from disk.
func TailLines(path string, tailLines int, maxBytes int64) ([]string, error) {
	if path == "" {
		return nil, errors.New("missing path")
	}
	if tailLines <= 0 {
		tailLines = 20
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}
	size := info.Size()
	start := int64(0)
	if size > maxBytes {
		start = size - maxBytes
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek")
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	if start > 0 {
		if i := bytes.IndexByte(b, '\n'); i >= 0 && i+1 < len(b) {
			b = b[i+1:]
		}
	}

	lines := strings.Split(string(b), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > tailLines {
		lines = append([]string{}, lines[len(lines)-tailLines:]...)
	}
	return lines, nil
}

// LinesSince filters lines to those whose leading timestamp parses to a time
// at or after since. Lines without a parseable timestamp inherit the verdict
// of the previous line, so multi-line output stays with its header.
func LinesSince(lines []string, since time.Time) []string {
	out := make([]string, 0, len(lines))
	keep := false
	for _, line := range lines {
		if ts, ok := leadingTimestamp(line); ok {
			keep = !ts.Before(since)
		}
		if keep {
			out = append(out, line)
		}
	}
	return out
}

// leadingTimestamp tries to parse a timestamp from the first one or two
// whitespace-separated tokens of a log line.
func leadingTimestamp(line string) (time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return time.Time{}, false
	}
	candidates := []string{fields[0]}
	if len(fields) > 1 {
		candidates = append(candidates, fields[0]+" "+fields[1])
	}
	// Prefer the longer candidate: "2026-01-02 15:04:05" over a bare date.
	for i := len(candidates) - 1; i >= 0; i-- {
		s := strings.Trim(candidates[i], "[]")
		t, err := dateparse.ParseAny(s)
		if err == nil && t.Year() > 1970 {
			return t, true
		}
	}
	return time.Time{}, false
}
