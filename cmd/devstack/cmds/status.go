package cmds

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/devstack/pkg/events"
	"github.com/go-go-golems/devstack/pkg/orchestrate"
	"github.com/go-go-golems/devstack/pkg/proc"
	"github.com/go-go-golems/devstack/pkg/specs"
	"github.com/go-go-golems/devstack/pkg/tui"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool
	var watch bool
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show app and container status",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			project, err := loadProject(opts)
			if err != nil {
				return err
			}

			orch := orchestrate.New(orchestrate.Options{Root: opts.Root}, project)

			if watch {
				return runWatch(cmd, orch, project, refresh)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			report, err := orch.Status(ctx, project)
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return errors.Wrap(err, "marshal status")
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}

			renderReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "Live-updating status view")
	cmd.Flags().DurationVar(&refresh, "refresh", time.Second, "Refresh interval for --watch")
	return cmd
}

func renderReport(cmd *cobra.Command, report *orchestrate.Report) {
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "%-20s %-10s %-8s %-7s %s\n", "APP", "STATE", "PID", "PORT", "UPTIME")
	for _, app := range report.Apps {
		state := "stopped"
		pid, port, uptime := "-", "-", "-"
		if app.Running {
			state = "running"
			pid = fmt.Sprintf("%d", app.PID)
			if started, err := proc.StartTime(app.PID); err == nil {
				uptime = time.Since(started).Round(time.Second).String()
			}
		}
		if app.ResolvedPort > 0 {
			port = fmt.Sprintf("%d", app.ResolvedPort)
		}
		_, _ = fmt.Fprintf(out, "%-20s %-10s %-8s %-7s %s\n", app.Name, state, pid, port, uptime)
	}

	if len(report.Containers) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%-20s %-10s %s\n", "CONTAINER", "STATE", "PORT")
	for _, ctr := range report.Containers {
		port := "-"
		if ctr.Port > 0 {
			port = fmt.Sprintf("%d", ctr.Port)
		}
		_, _ = fmt.Fprintf(out, "%-20s %-10s %s\n", ctr.Name, ctr.State, port)
	}
}

func runWatch(cmd *cobra.Command, orch *orchestrate.Orchestrator, project *specs.Project, refresh time.Duration) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bus, err := events.NewInMemoryBus()
	if err != nil {
		return err
	}

	model := tui.NewWatchModel(project.Name, refresh, func(ctx context.Context) (*orchestrate.Report, error) {
		return orch.Status(ctx, project)
	})
	program := tea.NewProgram(model,
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithAltScreen(),
	)
	tui.RegisterEventForwarder(bus, program)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := bus.Run(egCtx)
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		_, err := program.Run()
		cancel()
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := eg.Wait(); err != nil {
		return errors.Wrap(err, "watch")
	}
	return nil
}
