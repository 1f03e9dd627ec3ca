/*
Package log provides structured logging for flock using zerolog.

The package wraps a single global zerolog.Logger with component-scoped child
loggers. Both binaries call Init once at startup; every other package takes a
child logger from WithComponent or WithNode and keeps it on its struct.

# Log Levels

  - Debug: connection attempts, block-by-block dispatch, sync output
  - Info: worker launches, node capacity, run summary
  - Warn: unreachable nodes, failed blocks, best-effort stop failures
  - Error: failures that end a run or a worker service

# Usage

	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

	logger := log.WithNode("controller", node.Name)
	logger.Info().Int("port", binding.Port).Msg("Launching worker")

Console output is written to stderr so that the progress line and the final
summary on stdout stay readable.
*/
package log
