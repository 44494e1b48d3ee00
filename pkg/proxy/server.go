// Package proxy implements the gateway: one HTTP listener that resolves
// <name>.<proxy-host> against the shared route table and forwards plain HTTP
// and protocol-upgrade traffic to whatever port the name is bound to. The
// table is re-read from disk on every request; the proxy and the supervisor
// may run as different processes and only ever meet in that file.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/devstack/pkg/state"
)

var (
	// ErrUnregisteredRoute is a client error: nothing is bound to that name.
	ErrUnregisteredRoute = errors.New("unregistered service")
	// ErrUpstreamUnreachable means the route exists but its target is gone.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)

const (
	// DefaultPort is the first port the daemon tries to bind.
	DefaultPort = 8890
	// portRange is how many contiguous ports above DefaultPort are probed.
	portRange = 10
)

type Gateway struct {
	Root string
	// Host is the bare proxy host; requests whose Host equals it are status
	// requests, everything else routes by its first label.
	Host string

	transport *http.Transport
	server    *http.Server
}

func New(root, host string) *Gateway {
	if host == "" {
		host = "localhost"
	}
	dialer := net.Dialer{Timeout: 10 * time.Second, KeepAlive: 60 * time.Second}
	return &Gateway{
		Root: root,
		Host: host,
		transport: &http.Transport{
			DialContext:         dialer.DialContext,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (g *Gateway) ListenAndServe(ctx context.Context, port int) error {
	g.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: http.HandlerFunc(g.handleRequest),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = g.server.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", port).Str("host", g.Host).Msg("gateway listening")
	err := g.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrap(err, "gateway listen")
}

func (g *Gateway) handleRequest(w http.ResponseWriter, r *http.Request) {
	hostname := hostWithoutPort(r.Host)

	if hostname == g.Host || hostname == "" {
		g.handleStatus(w, r)
		return
	}

	name, _, _ := strings.Cut(hostname, ".")
	entry, ok, err := state.LookupRoute(g.Root, name)
	if err != nil {
		http.Error(w, "route table unavailable: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		// Distinguish "nothing is there" from "the target crashed".
		http.Error(w, fmt.Sprintf("unregistered service %q", name), http.StatusNotFound)
		log.Debug().Str("service", name).Msg("unregistered route")
		return
	}

	if isUpgradeRequest(r) {
		g.proxyUpgrade(w, r, name, entry.Port)
		return
	}
	g.proxyHTTP(w, r, name, entry.Port)
}

// proxyHTTP forwards a plain request, appending (never overwriting) the
// standard forwarding headers so a chain of proxies stays intact.
func (g *Gateway) proxyHTTP(w http.ResponseWriter, r *http.Request, name string, port int) {
	target := &url.URL{Scheme: "http", Host: "127.0.0.1:" + strconv.Itoa(port)}
	origHost := r.Host

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
			appendHeader(req.Header, "X-Forwarded-Proto", requestProto(r))
			appendHeader(req.Header, "X-Forwarded-Host", origHost)
			// X-Forwarded-For is appended by ReverseProxy itself.
		},
		Transport: g.transport,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			log.Debug().Str("service", name).Int("port", port).Err(err).Msg("upstream unreachable")
			http.Error(w,
				fmt.Sprintf("service %q is registered on port %d but not responding", name, port),
				http.StatusBadGateway)
		},
	}
	rp.ServeHTTP(w, r)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	routes, err := state.LoadRoutes(g.Root)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"proxy_host": g.Host,
		"routes":     routes,
	})
}

// FindListenPort returns the first bindable port in the daemon's contiguous
// range starting at DefaultPort.
func FindListenPort() (int, error) {
	for p := DefaultPort; p < DefaultPort+portRange; p++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err == nil {
			_ = ln.Close()
			return p, nil
		}
	}
	return 0, errors.Errorf("no free port in [%d-%d]", DefaultPort, DefaultPort+portRange-1)
}

func hostWithoutPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func requestProto(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// appendHeader appends to a pre-existing header value instead of replacing
// it, comma-separated, matching X-Forwarded-* conventions.
func appendHeader(h http.Header, key, value string) {
	if prior := h.Get(key); prior != "" {
		h.Set(key, prior+", "+value)
		return
	}
	h.Set(key, value)
}
