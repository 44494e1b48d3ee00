package cmds

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/devstack/pkg/orchestrate"
	"github.com/go-go-golems/devstack/pkg/proxy"
	"github.com/go-go-golems/devstack/pkg/specs"
)

func newUpCmd() *cobra.Command {
	var withProxy bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start containers and apps, gated on readiness and health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestration(cmd, func(ctx context.Context, orch *orchestrate.Orchestrator, project *specs.Project) (*orchestrate.Summary, error) {
				sum, err := orch.Up(ctx, project)
				if err != nil {
					return sum, err
				}
				if withProxy {
					opts, optErr := getRootOptions(cmd)
					if optErr != nil {
						return sum, optErr
					}
					if _, proxyErr := proxy.StartDaemon(opts.Root, project.ProxyHost); proxyErr != nil {
						return sum, proxyErr
					}
				}
				return sum, nil
			})
		},
	}

	cmd.Flags().BoolVar(&withProxy, "proxy", false, "Also start the gateway proxy daemon")
	return cmd
}
