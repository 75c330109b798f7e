// Package supervise provides the outer run loop every long-lived worker
// uses, and the Manager that tracks and restarts a table of such workers.
//
// A worker here is a goroutine, not an OS process: the original system
// spawns one process per alerter/monitor and a manager process that
// restarts a dead child. A goroutine plus its context.CancelFunc is the
// idiomatic Go stand-in for that process handle — cheaper to supervise,
// and it still gives the manager an independent liveness signal and an
// independent kill switch per child.
package supervise

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Worker is anything RunSupervised can keep alive. Run should block until
// ctx is canceled or an unrecoverable error occurs.
type Worker interface {
	Run(ctx context.Context) error
}

// RunSupervised runs w, restarting it after restartPeriod whenever Run
// returns (with or without an error), until ctx is canceled. It installs no signal
// handling of its own; call RootContext to build a ctx that cancels on
// SIGTERM/SIGINT/SIGHUP.
func RunSupervised(ctx context.Context, w Worker, restartPeriod time.Duration, log zerolog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := w.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error().Err(err).Dur("restart_in", restartPeriod).Msg("worker exited with error, restarting")
		} else {
			log.Warn().Dur("restart_in", restartPeriod).Msg("worker exited cleanly, restarting")
		}

		t := time.NewTimer(restartPeriod)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// RootContext returns a context canceled on SIGTERM, SIGINT, or SIGHUP,
// matching the signal set the original process-based workers trapped.
func RootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}
