package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/devstack/pkg/supervise"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <app>",
		Short: "Stop a single app and release its port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}

			sup := supervise.New(supervise.Options{Root: opts.Root})
			if err := sup.Stop(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s stopped\n", args[0])
			return nil
		},
	}
}
