//go:build !windows

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dl-alexandre/memora/internal/logging"
)

// rotateOnHangup reopens log files on SIGHUP so external rotation works
func rotateOnHangup(ctx context.Context, logger logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := logging.Rotate(logger); err != nil {
				logger.Warn("Log rotation failed", logging.F("error", err))
			} else {
				logger.Info("Log files reopened")
			}
		}
	}
}
