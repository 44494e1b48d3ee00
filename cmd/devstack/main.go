package main

import (
	"os"

	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/devstack/cmd/devstack/cmds"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "devstack",
	Short:   "devstack is a local dev environment orchestrator",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitLoggerFromCobra(cmd)
	},
}

func main() {
	cobra.CheckErr(logging.AddLoggingLayerToRootCommand(rootCmd, "devstack"))
	cmds.AddRootFlags(rootCmd.PersistentFlags())
	cobra.CheckErr(cmds.AddCommands(rootCmd))
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, cmds.ErrDegraded) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
