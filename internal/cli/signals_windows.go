//go:build windows

package cli

import (
	"context"

	"github.com/dl-alexandre/memora/internal/logging"
)

func rotateOnHangup(context.Context, logging.Logger) {}
