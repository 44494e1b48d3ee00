package cmds

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/devstack/pkg/orchestrate"
	"github.com/go-go-golems/devstack/pkg/proxy"
	"github.com/go-go-golems/devstack/pkg/specs"
)

func newDownCmd() *cobra.Command {
	var keepProxy bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop apps and containers, sweeping orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestration(cmd, func(ctx context.Context, orch *orchestrate.Orchestrator, project *specs.Project) (*orchestrate.Summary, error) {
				sum, err := orch.Down(ctx, project)
				if err != nil {
					return sum, err
				}
				if !keepProxy {
					opts, optErr := getRootOptions(cmd)
					if optErr != nil {
						return sum, optErr
					}
					if proxyErr := proxy.StopDaemon(ctx, opts.Root); proxyErr != nil {
						return sum, proxyErr
					}
				}
				return sum, nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepProxy, "keep-proxy", false, "Leave the gateway proxy daemon running")
	return cmd
}
