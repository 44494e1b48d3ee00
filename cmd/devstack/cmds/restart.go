package cmds

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/devstack/pkg/orchestrate"
	"github.com/go-go-golems/devstack/pkg/specs"
)

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop everything, then bring it back up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestration(cmd, func(ctx context.Context, orch *orchestrate.Orchestrator, project *specs.Project) (*orchestrate.Summary, error) {
				return orch.Restart(ctx, project)
			})
		},
	}
}
