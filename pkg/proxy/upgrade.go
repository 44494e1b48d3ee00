package proxy

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// isUpgradeRequest detects the protocol-switch handshake (websockets,
// live-reload channels). Connection is a comma-separated token list.
func isUpgradeRequest(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}
	for _, token := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}

// proxyUpgrade relays the handshake at the raw-socket level: the upstream's
// switch response is replayed to the client byte-for-byte (header order and
// casing preserved), then both sockets are spliced until either side closes.
// A non-101 answer from the upstream is relayed as an ordinary response.
func (g *Gateway) proxyUpgrade(w http.ResponseWriter, r *http.Request, name string, port int) {
	addr := "127.0.0.1:" + strconv.Itoa(port)
	upstream, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		http.Error(w,
			fmt.Sprintf("service %q is registered on port %d but not responding", name, port),
			http.StatusBadGateway)
		return
	}
	defer func() { _ = upstream.Close() }()

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "upgrade not supported", http.StatusInternalServerError)
		return
	}

	outreq := r.Clone(r.Context())
	outreq.URL.Scheme = "http"
	outreq.URL.Host = addr
	appendHeader(outreq.Header, "X-Forwarded-For", clientIP(r))
	appendHeader(outreq.Header, "X-Forwarded-Proto", requestProto(r))
	appendHeader(outreq.Header, "X-Forwarded-Host", r.Host)

	if err := outreq.Write(upstream); err != nil {
		http.Error(w,
			fmt.Sprintf("service %q is registered on port %d but not responding", name, port),
			http.StatusBadGateway)
		return
	}

	upReader := bufio.NewReader(upstream)
	head, status, err := readResponseHead(upReader)
	if err != nil {
		http.Error(w,
			fmt.Sprintf("service %q is registered on port %d but not responding", name, port),
			http.StatusBadGateway)
		return
	}

	downstream, downRW, err := hj.Hijack()
	if err != nil {
		log.Warn().Err(err).Msg("hijack failed")
		return
	}
	defer func() { _ = downstream.Close() }()

	// Replay the exact response head, whatever the verdict was.
	if _, err := downstream.Write(head); err != nil {
		return
	}

	if status != http.StatusSwitchingProtocols {
		// Upstream declined: relay its ordinary response body and stop.
		_ = upstream.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, _ = io.Copy(downstream, upReader)
		return
	}

	log.Debug().Str("service", name).Int("port", port).Msg("upgrade spliced")

	var eg errgroup.Group
	eg.Go(func() error {
		// upReader may hold bytes past the head; drain through it.
		_, err := io.Copy(downstream, upReader)
		_ = downstream.Close()
		return err
	})
	eg.Go(func() error {
		// Same for bytes the server buffered from the client.
		_, err := io.Copy(upstream, downRW.Reader)
		_ = upstream.Close()
		return err
	})
	_ = eg.Wait()
}

// readResponseHead consumes the status line and headers verbatim, returning
// the raw bytes and the parsed status code.
func readResponseHead(br *bufio.Reader) ([]byte, int, error) {
	var buf bytes.Buffer

	statusLine, err := br.ReadString('\n')
	if err != nil {
		return nil, 0, err
	}
	buf.WriteString(statusLine)

	status := 0
	fields := strings.Fields(statusLine)
	if len(fields) >= 2 {
		status, _ = strconv.Atoi(fields[1])
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, 0, err
		}
		buf.WriteString(line)
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	return buf.Bytes(), status, nil
}

func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
