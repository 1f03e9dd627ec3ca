package client

import (
	"context"

	"github.com/cuemby/flock/pkg/log"
)

// DiscoverCapacity returns the logical CPU count of the worker behind h.
// ok is false when the count could not be read or was not positive; the
// caller must then run a single client against the node.
func DiscoverCapacity(ctx context.Context, h *Handle) (cpus int, ok bool) {
	n, err := h.CPUCount(ctx)
	if err != nil {
		log.Logger.Warn().Err(err).Str("addr", h.Addr()).Msg("Capacity unknown, using one client")
		return 1, false
	}
	if n < 1 {
		log.Logger.Warn().Int("cpu_count", n).Str("addr", h.Addr()).Msg("Invalid capacity, using one client")
		return 1, false
	}
	return n, true
}
