package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/devstack/pkg/supervise"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <app>",
		Short: "Start a single app from the project config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			project, err := loadProject(opts)
			if err != nil {
				return err
			}

			app := project.App(args[0])
			if app == nil {
				return errors.Errorf("unknown app %q", args[0])
			}

			sup := supervise.New(supervise.Options{Root: opts.Root})
			res, err := sup.Start(cmd.Context(), *app)
			if err != nil {
				return err
			}
			if res.AlreadyRunning {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s already running pid=%d\n", res.Name, res.PID)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s started pid=%d port=%d\n", res.Name, res.PID, res.Port)
			return nil
		},
	}
}
