package containers

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const readyPollInterval = 2 * time.Second

// awaitReady polls the target's in-container readiness command until it
// succeeds or the declared timeout elapses. A timeout surfaces as
// ErrReadinessTimeout, which callers downgrade to a warning: the container is
// up, it just never confirmed it can accept connections.
func (d *Driver) awaitReady(ctx context.Context, t target) error {
	check, timeout := t.readyCheck()
	if check == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.run.Run(ctx, "exec", t.container, "sh", "-c", check); err == nil {
			log.Debug().Str("target", t.logical).Msg("readiness confirmed")
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.Wrapf(ErrReadinessTimeout, "%q after %s", t.logical, timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
