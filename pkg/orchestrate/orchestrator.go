// Package orchestrate sequences the runtime: containers, readiness, app
// processes, health gates, route registration, strictly in declaration
// order, and the reverse for teardown. It owns no
// process or network state itself; it only calls the components that do.
package orchestrate

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/devstack/pkg/containers"
	"github.com/go-go-golems/devstack/pkg/events"
	"github.com/go-go-golems/devstack/pkg/health"
	"github.com/go-go-golems/devstack/pkg/specs"
	"github.com/go-go-golems/devstack/pkg/supervise"
)

type Options struct {
	Root      string
	Publisher message.Publisher
}

type Orchestrator struct {
	opts   Options
	sup    *supervise.Supervisor
	driver *containers.Driver
}

func New(opts Options, project *specs.Project) *Orchestrator {
	return &Orchestrator{
		opts: opts,
		sup:  supervise.New(supervise.Options{Root: opts.Root}),
		driver: containers.New(containers.Options{
			Root:        opts.Root,
			ComposeFile: project.ComposeFile,
			ProjectName: project.Name,
		}),
	}
}

// Outcome is the per-target verdict of an Up or Down pass.
type Outcome struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // "app" | "container"
	Action  string `json:"action,omitempty"`
	PID     int    `json:"pid,omitempty"`
	Port    int    `json:"port,omitempty"`
	Warning string `json:"warning,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Summary aggregates outcomes. Degraded means the requested state was not
// fully confirmed (health or readiness never passed) even though nothing
// failed outright; callers map it to a distinct exit code.
type Summary struct {
	Outcomes []Outcome `json:"outcomes"`
	Degraded bool      `json:"degraded,omitempty"`
}

// Up brings the project up: containers first, readiness-gated, then apps in
// declaration order, each health-gated before the next summary line. A fatal
// app error aborts; readiness and health timeouts degrade.
func (o *Orchestrator) Up(ctx context.Context, project *specs.Project) (*Summary, error) {
	sum := &Summary{}

	ctrResults, err := o.driver.Start(ctx, project)
	for _, r := range ctrResults {
		out := Outcome{Name: r.Name, Kind: "container", Action: r.Action, Port: r.Port, Warning: r.Warning, Err: r.Err}
		sum.Outcomes = append(sum.Outcomes, out)
		o.publishContainer(r)
		if r.Warning != "" {
			sum.Degraded = true
		}
	}
	if err != nil {
		return sum, err
	}

	for _, app := range project.Apps {
		res, err := o.sup.Start(ctx, app)
		if err != nil {
			events.Publish(o.opts.Publisher, events.Event{Type: events.TypeFailure, Target: app.Name, Kind: "app", Detail: err.Error()})
			return sum, errors.Wrapf(err, "start app %q", app.Name)
		}

		out := Outcome{Name: app.Name, Kind: "app", Action: "started", PID: res.PID, Port: res.Port}
		evType := events.TypeAppStarted
		if res.AlreadyRunning {
			out.Action = "already-running"
			evType = events.TypeAppAlreadyRunning
		}
		events.Publish(o.opts.Publisher, events.Event{Type: evType, Target: app.Name, Kind: "app", PID: res.PID, Port: res.Port})

		if app.HealthURL != "" {
			probe := health.Probe{
				URL:     app.HealthURL,
				Timeout: time.Duration(app.HealthTimeoutSeconds) * time.Second,
			}
			if err := probe.Wait(ctx); err != nil {
				if !errors.Is(err, health.ErrTimeout) {
					return sum, err
				}
				out.Warning = err.Error()
				sum.Degraded = true
				events.Publish(o.opts.Publisher, events.Event{Type: events.TypeWarning, Target: app.Name, Kind: "app", Detail: err.Error()})
			} else {
				events.Publish(o.opts.Publisher, events.Event{Type: events.TypeAppHealthy, Target: app.Name, Kind: "app", Port: res.Port})
			}
		}
		sum.Outcomes = append(sum.Outcomes, out)
	}

	log.Info().Int("targets", len(sum.Outcomes)).Bool("degraded", sum.Degraded).Msg("up complete")
	return sum, nil
}

// Down tears everything down in reverse: apps (with the orphan sweep), then
// containers. Teardown is maximal-cleanup: per-target failures are reported
// but never abort the sequence.
func (o *Orchestrator) Down(ctx context.Context, project *specs.Project) (*Summary, error) {
	sum := &Summary{}

	stopErr := o.sup.StopAll(ctx, project.Apps)
	for _, app := range project.Apps {
		out := Outcome{Name: app.Name, Kind: "app", Action: "stopped"}
		sum.Outcomes = append(sum.Outcomes, out)
		events.Publish(o.opts.Publisher, events.Event{Type: events.TypeAppStopped, Target: app.Name, Kind: "app"})
	}
	if stopErr != nil {
		sum.Degraded = true
	}

	for _, r := range o.driver.Stop(ctx, project) {
		out := Outcome{Name: r.Name, Kind: "container", Action: "stopped", Err: r.Err}
		sum.Outcomes = append(sum.Outcomes, out)
		events.Publish(o.opts.Publisher, events.Event{Type: events.TypeContainerStopped, Target: r.Name, Kind: "container", Detail: r.Err})
		if r.Err != "" {
			sum.Degraded = true
		}
	}

	log.Info().Bool("degraded", sum.Degraded).Msg("down complete")
	return sum, nil
}

// Restart is Down (best-effort) then Up.
func (o *Orchestrator) Restart(ctx context.Context, project *specs.Project) (*Summary, error) {
	if _, err := o.Down(ctx, project); err != nil {
		log.Warn().Err(err).Msg("down during restart")
	}
	return o.Up(ctx, project)
}

// Report merges app and container statuses for rendering.
type Report struct {
	Apps       []supervise.Status        `json:"apps"`
	Containers []containers.TargetResult `json:"containers"`
}

func (o *Orchestrator) Status(ctx context.Context, project *specs.Project) (*Report, error) {
	rep := &Report{}
	for _, app := range project.Apps {
		st, err := o.sup.Status(app)
		if err != nil {
			return nil, err
		}
		rep.Apps = append(rep.Apps, *st)
	}
	rep.Containers = o.driver.Status(ctx, project)
	return rep, nil
}

func (o *Orchestrator) publishContainer(r containers.TargetResult) {
	switch {
	case r.Err != "":
		events.Publish(o.opts.Publisher, events.Event{Type: events.TypeFailure, Target: r.Name, Kind: "container", Detail: r.Err})
	case r.Warning != "":
		events.Publish(o.opts.Publisher, events.Event{Type: events.TypeWarning, Target: r.Name, Kind: "container", Detail: r.Warning})
	case r.Action == "remapped":
		events.Publish(o.opts.Publisher, events.Event{Type: events.TypeContainerRemapped, Target: r.Name, Kind: "container", Port: r.Port})
	case r.Ready:
		events.Publish(o.opts.Publisher, events.Event{Type: events.TypeContainerReady, Target: r.Name, Kind: "container", Port: r.Port})
	default:
		events.Publish(o.opts.Publisher, events.Event{Type: events.TypeContainerStarted, Target: r.Name, Kind: "container", Port: r.Port})
	}
}
