// Package health implements the transient HTTP/TCP probes used to gate
// startup. Probes are bounded polls: they succeed, or they time out and the
// caller proceeds in a degraded state.
package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout marks a probe that never succeeded before its deadline. Callers
// downgrade it to a warning rather than aborting startup.
var ErrTimeout = errors.New("health check timed out")

// Probe polls an HTTP URL until it answers or Timeout elapses.
type Probe struct {
	URL      string
	Timeout  time.Duration
	Interval time.Duration
}

// Wait blocks until the URL answers with a non-5xx status, the probe times
// out (ErrTimeout), or ctx is cancelled.
func (p Probe) Wait(ctx context.Context) error {
	if p.URL == "" {
		return nil
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 300 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := time.NewTicker(interval)
	defer t.Stop()

	client := &http.Client{Timeout: 500 * time.Millisecond}
	for {
		if checkOnce(ctx, client, p.URL) == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.Wrap(ErrTimeout, p.URL)
			}
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Check performs a single probe attempt.
func (p Probe) Check(ctx context.Context) error {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	return checkOnce(ctx, client, p.URL)
}

func checkOnce(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "probe")
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errors.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// WaitTCP polls until a TCP connection to address succeeds or ctx ends.
func WaitTCP(ctx context.Context, address string) error {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()

	for {
		d := net.Dialer{Timeout: 200 * time.Millisecond}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.Wrap(ErrTimeout, address)
			}
			return ctx.Err()
		case <-t.C:
		}
	}
}
