package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/devstack/pkg/state"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// startGateway serves a gateway on a fresh port for the duration of the test.
func startGateway(t *testing.T, root string) int {
	t.Helper()
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = New(root, "localhost").ListenAndServe(ctx, port) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return port
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("gateway never came up")
	return 0
}

func gatewayGet(t *testing.T, port int, host string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/", port), nil)
	require.NoError(t, err)
	req.Host = host

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestGateway_UnregisteredRouteIs404(t *testing.T) {
	root := t.TempDir()
	port := startGateway(t, root)

	resp, body := gatewayGet(t, port, "web.localhost")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, body, `unregistered service "web"`)
}

func TestGateway_ForwardsWithAppendedHeaders(t *testing.T) {
	root := t.TempDir()

	var gotProto, gotHost, gotXFF string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotProto = r.Header.Get("X-Forwarded-Proto")
		gotHost = r.Header.Get("X-Forwarded-Host")
		gotXFF = r.Header.Get("X-Forwarded-For")
		_, _ = w.Write([]byte("hello from upstream"))
	}))
	defer upstream.Close()
	upstreamPort := upstream.Listener.Addr().(*net.TCPAddr).Port

	require.NoError(t, state.PutRoute(root, "api", state.RouteEntry{Port: upstreamPort, OwnerPID: os.Getpid()}))

	port := startGateway(t, root)
	resp, body := gatewayGet(t, port, "api.localhost")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello from upstream", body)
	require.Equal(t, "http", gotProto)
	require.Equal(t, "api.localhost", gotHost)
	require.NotEmpty(t, gotXFF)
}

func TestGateway_AppendsToExistingForwardingHeaders(t *testing.T) {
	root := t.TempDir()

	var gotProto string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotProto = r.Header.Get("X-Forwarded-Proto")
	}))
	defer upstream.Close()
	upstreamPort := upstream.Listener.Addr().(*net.TCPAddr).Port

	require.NoError(t, state.PutRoute(root, "api", state.RouteEntry{Port: upstreamPort, OwnerPID: os.Getpid()}))
	port := startGateway(t, root)

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/", port), nil)
	require.NoError(t, err)
	req.Host = "api.localhost"
	req.Header.Set("X-Forwarded-Proto", "https")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "https, http", gotProto)
}

func TestGateway_DeadOwnerRouteSelfHeals(t *testing.T) {
	root := t.TempDir()

	cmd := exec.Command("bash", "-c", "true")
	require.NoError(t, cmd.Run())
	require.NoError(t, state.PutRoute(root, "gone", state.RouteEntry{Port: 4999, OwnerPID: cmd.Process.Pid}))

	port := startGateway(t, root)
	resp, body := gatewayGet(t, port, "gone.localhost")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, body, "unregistered service")
}

func TestGateway_UpstreamUnreachableIs502(t *testing.T) {
	root := t.TempDir()

	// A port with a live owner but nothing listening.
	dead := freePort(t)
	require.NoError(t, state.PutRoute(root, "crashed", state.RouteEntry{Port: dead, OwnerPID: os.Getpid()}))

	port := startGateway(t, root)
	resp, body := gatewayGet(t, port, "crashed.localhost")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Contains(t, body, fmt.Sprintf(`service "crashed" is registered on port %d but not responding`, dead))
}

func TestGateway_BareHostServesStatus(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, state.PutRoute(root, "api", state.RouteEntry{Port: 4001, OwnerPID: os.Getpid()}))

	port := startGateway(t, root)
	resp, body := gatewayGet(t, port, "localhost")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status struct {
		ProxyHost string                      `json:"proxy_host"`
		Routes    map[string]state.RouteEntry `json:"routes"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	require.Equal(t, "localhost", status.ProxyHost)
	require.Equal(t, 4001, status.Routes["api"].Port)
}

func TestFindListenPort_SkipsOccupied(t *testing.T) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", DefaultPort))
	if err != nil {
		t.Skipf("default port unavailable for test: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port, err := FindListenPort()
	require.NoError(t, err)
	require.Greater(t, port, DefaultPort)
	require.Less(t, port, DefaultPort+portRange)
}
