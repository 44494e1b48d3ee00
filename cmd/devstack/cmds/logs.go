package cmds

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/devstack/pkg/state"
)

func newLogsCmd() *cobra.Command {
	var tailLines int
	var since string
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs <app>",
		Short: "Tail an app's log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}

			path := state.AppLogPath(opts.Root, args[0])
			if _, err := os.Stat(path); err != nil {
				return errors.Wrapf(err, "no log for app %q", args[0])
			}

			lines, err := state.TailLines(path, tailLines, 2<<20)
			if err != nil {
				return err
			}

			if since != "" {
				cutoff, err := parseSince(since)
				if err != nil {
					return err
				}
				lines = state.LinesSince(lines, cutoff)
			}

			out := cmd.OutOrStdout()
			for _, line := range lines {
				_, _ = fmt.Fprintln(out, line)
			}

			if follow {
				return followFile(cmd, path)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&tailLines, "tail", "n", 100, "Number of trailing lines to show")
	cmd.Flags().StringVar(&since, "since", "", "Only lines newer than a duration (10m) or timestamp")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep the log open and print new lines")
	return cmd
}

// parseSince accepts either a relative duration (10m, 1h) or anything
// dateparse can read.
func parseSince(s string) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse --since %q", s)
	}
	return t, nil
}

// followFile polls the log for appended bytes until the command context is
// canceled. Truncation resets the offset, matching log rotation.
func followFile(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open log")
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}

		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.Size() < offset {
			offset = 0
		}
		if info.Size() == offset {
			continue
		}

		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		n, err := io.Copy(out, f)
		if err != nil {
			return err
		}
		offset += n
	}
}
