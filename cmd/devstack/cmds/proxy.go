package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/devstack/pkg/proxy"
)

func newProxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Manage the hostname-routing gateway",
	}
	cmd.AddCommand(newProxyStartCmd())
	cmd.AddCommand(newProxyStopCmd())
	cmd.AddCommand(newProxyStatusCmd())
	cmd.AddCommand(newProxyRunCmd())
	return cmd
}

func newProxyStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			project, err := loadProject(opts)
			if err != nil {
				return err
			}

			rec, err := proxy.StartDaemon(opts.Root, project.ProxyHost)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gateway running pid=%d port=%d\n", rec.PID, rec.Port)
			return nil
		},
	}
}

func newProxyStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the gateway daemon and clear routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			if err := proxy.StopDaemon(cmd.Context(), opts.Root); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "gateway stopped")
			return nil
		},
	}
}

func newProxyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the gateway daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			st, err := proxy.QueryDaemon(opts.Root)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return errors.Wrap(err, "marshal proxy status")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

// proxy run is the daemon entrypoint; proxy start re-executes the binary
// with this subcommand.
func newProxyRunCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:    "run",
		Short:  "Run the gateway in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			if host == "" {
				project, err := loadProject(opts)
				if err != nil {
					return err
				}
				host = project.ProxyHost
			}

			g := proxy.New(opts.Root, host)
			return g.ListenAndServe(cmd.Context(), port)
		},
	}

	cmd.Flags().StringVar(&host, "proxy-host", "", "Base hostname routed by the gateway")
	cmd.Flags().IntVar(&port, "port", proxy.DefaultPort, "Listen port")
	return cmd
}
