package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/devstack/pkg/events"
	"github.com/go-go-golems/devstack/pkg/specs"
)

// capturingPublisher records lifecycle events instead of routing them.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturingPublisher) Publish(topic string, msgs ...*message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		var ev events.Event
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			return err
		}
		c.events = append(c.events, ev)
	}
	return nil
}

func (c *capturingPublisher) Close() error { return nil }

func (c *capturingPublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

func sleepProject(names ...string) *specs.Project {
	p := &specs.Project{Name: "orchtest"}
	for _, n := range names {
		p.Apps = append(p.Apps, specs.AppSpec{Name: n, Command: "sleep 60"})
	}
	return p
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func TestUpStatusDown_AppOnlyProject(t *testing.T) {
	root := t.TempDir()
	pub := &capturingPublisher{}
	project := sleepProject("first", "second")
	orch := New(Options{Root: root, Publisher: pub}, project)
	ctx := context.Background()

	sum, err := orch.Up(ctx, project)
	require.NoError(t, err)
	require.False(t, sum.Degraded)
	require.Len(t, sum.Outcomes, 2)
	require.Equal(t, "first", sum.Outcomes[0].Name)
	require.Equal(t, "second", sum.Outcomes[1].Name)
	for _, out := range sum.Outcomes {
		require.Equal(t, "started", out.Action)
		require.True(t, processAlive(out.PID))
	}
	require.Equal(t, []string{events.TypeAppStarted, events.TypeAppStarted}, pub.types())

	rep, err := orch.Status(ctx, project)
	require.NoError(t, err)
	require.Len(t, rep.Apps, 2)
	require.True(t, rep.Apps[0].Running)
	require.True(t, rep.Apps[1].Running)
	require.Empty(t, rep.Containers)

	pids := []int{sum.Outcomes[0].PID, sum.Outcomes[1].PID}
	downSum, err := orch.Down(ctx, project)
	require.NoError(t, err)
	require.False(t, downSum.Degraded)
	for _, pid := range pids {
		require.False(t, processAlive(pid))
	}

	rep, err = orch.Status(ctx, project)
	require.NoError(t, err)
	require.False(t, rep.Apps[0].Running)
	require.False(t, rep.Apps[1].Running)
}

func TestUp_SecondCallIsAlreadyRunning(t *testing.T) {
	root := t.TempDir()
	project := sleepProject("web")
	orch := New(Options{Root: root}, project)
	ctx := context.Background()
	t.Cleanup(func() { _, _ = orch.Down(ctx, project) })

	first, err := orch.Up(ctx, project)
	require.NoError(t, err)
	require.Equal(t, "started", first.Outcomes[0].Action)

	second, err := orch.Up(ctx, project)
	require.NoError(t, err)
	require.Equal(t, "already-running", second.Outcomes[0].Action)
	require.Equal(t, first.Outcomes[0].PID, second.Outcomes[0].PID)
}

func TestUp_HealthTimeoutDegradesInsteadOfFailing(t *testing.T) {
	root := t.TempDir()

	// A released port: the probe can never succeed.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadURL := fmt.Sprintf("http://127.0.0.1:%d/health", ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	pub := &capturingPublisher{}
	project := &specs.Project{
		Name: "orchtest",
		Apps: []specs.AppSpec{
			{Name: "flaky", Command: "sleep 60", HealthURL: deadURL, HealthTimeoutSeconds: 1},
			{Name: "after", Command: "sleep 60"},
		},
	}
	orch := New(Options{Root: root, Publisher: pub}, project)
	ctx := context.Background()
	t.Cleanup(func() { _, _ = orch.Down(ctx, project) })

	sum, err := orch.Up(ctx, project)
	require.NoError(t, err)
	require.True(t, sum.Degraded)
	require.Len(t, sum.Outcomes, 2)
	require.Contains(t, sum.Outcomes[0].Warning, "health check timed out")
	// The degraded app does not block the next one.
	require.Equal(t, "started", sum.Outcomes[1].Action)
	require.Contains(t, pub.types(), events.TypeWarning)
}

func TestUp_PassingHealthCheckPublishesHealthy(t *testing.T) {
	root := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pub := &capturingPublisher{}
	project := &specs.Project{
		Name: "orchtest",
		Apps: []specs.AppSpec{
			{Name: "web", Command: "sleep 60", HealthURL: srv.URL, HealthTimeoutSeconds: 5},
		},
	}
	orch := New(Options{Root: root, Publisher: pub}, project)
	ctx := context.Background()
	t.Cleanup(func() { _, _ = orch.Down(ctx, project) })

	sum, err := orch.Up(ctx, project)
	require.NoError(t, err)
	require.False(t, sum.Degraded)
	require.Empty(t, sum.Outcomes[0].Warning)
	require.Equal(t, []string{events.TypeAppStarted, events.TypeAppHealthy}, pub.types())
}

func TestRestart_ReplacesProcesses(t *testing.T) {
	root := t.TempDir()
	project := sleepProject("web")
	orch := New(Options{Root: root}, project)
	ctx := context.Background()
	t.Cleanup(func() { _, _ = orch.Down(ctx, project) })

	first, err := orch.Up(ctx, project)
	require.NoError(t, err)

	sum, err := orch.Restart(ctx, project)
	require.NoError(t, err)
	require.Equal(t, "started", sum.Outcomes[0].Action)
	require.NotEqual(t, first.Outcomes[0].PID, sum.Outcomes[0].PID)
	require.False(t, processAlive(first.Outcomes[0].PID))
	require.True(t, processAlive(sum.Outcomes[0].PID))
}
