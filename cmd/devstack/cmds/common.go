package cmds

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/devstack/pkg/config"
	"github.com/go-go-golems/devstack/pkg/events"
	"github.com/go-go-golems/devstack/pkg/orchestrate"
	"github.com/go-go-golems/devstack/pkg/specs"
)

// ErrDegraded maps to exit code 2: the environment came up but some target
// never confirmed healthy.
var ErrDegraded = errors.New("environment degraded")

type rootOptions struct {
	Root    string
	Config  string
	Timeout time.Duration
}

func AddRootFlags(fs *pflag.FlagSet) {
	fs.String("root", "", "Project root (defaults to current directory)")
	fs.String("config", "", "Path to config file (defaults to .devstack.yaml under root)")
	fs.Duration("timeout", 2*time.Minute, "Overall timeout for orchestration operations")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	root, err := cmd.Root().PersistentFlags().GetString("root")
	if err != nil {
		return rootOptions{}, err
	}
	if root == "" {
		root, err = os.Getwd()
		if err != nil {
			return rootOptions{}, err
		}
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return rootOptions{}, err
	}

	cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return rootOptions{}, err
	}
	if cfgPath == "" {
		cfgPath = config.DefaultPath(root)
	} else if !filepath.IsAbs(cfgPath) {
		cfgPath = filepath.Join(root, cfgPath)
	}

	timeout, err := cmd.Root().PersistentFlags().GetDuration("timeout")
	if err != nil {
		return rootOptions{}, err
	}
	if timeout <= 0 {
		return rootOptions{}, errors.New("timeout must be > 0")
	}

	return rootOptions{
		Root:    root,
		Config:  cfgPath,
		Timeout: timeout,
	}, nil
}

func loadProject(opts rootOptions) (*specs.Project, error) {
	return config.LoadFromFile(opts.Config)
}

// runOrchestration runs one orchestrator operation with the lifecycle bus
// printing per-target progress lines.
func runOrchestration(cmd *cobra.Command, fn func(ctx context.Context, orch *orchestrate.Orchestrator, project *specs.Project) (*orchestrate.Summary, error)) error {
	opts, err := getRootOptions(cmd)
	if err != nil {
		return err
	}
	project, err := loadProject(opts)
	if err != nil {
		return err
	}

	bus, err := events.NewInMemoryBus()
	if err != nil {
		return err
	}
	registerConsolePrinter(bus, cmd.OutOrStdout())

	orch := orchestrate.New(orchestrate.Options{Root: opts.Root, Publisher: bus.Publisher}, project)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := bus.Run(egCtx)
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	var sum *orchestrate.Summary
	var opErr error
	eg.Go(func() error {
		<-bus.Router.Running()
		opCtx, opCancel := context.WithTimeout(egCtx, opts.Timeout)
		defer opCancel()
		sum, opErr = fn(opCtx, orch, project)
		// Closing the bus drains buffered events through the console
		// handler before the router stops; cancelling here instead can
		// drop the tail of the progress output.
		return bus.Close()
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}
	if sum != nil && sum.Degraded {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "degraded")
		return ErrDegraded
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func registerConsolePrinter(bus *events.Bus, w io.Writer) {
	bus.AddHandler("devstack-console", func(msg *message.Message) error {
		defer msg.Ack()

		ev, err := events.Decode(msg)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%-22s %s", ev.Type, ev.Target)
		if ev.Port > 0 {
			line += fmt.Sprintf(" port=%d", ev.Port)
		}
		if ev.PID > 0 {
			line += fmt.Sprintf(" pid=%d", ev.PID)
		}
		if ev.Detail != "" {
			line += " " + ev.Detail
		}
		_, _ = fmt.Fprintln(w, line)
		return nil
	})
}
