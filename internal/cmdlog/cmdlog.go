// Package cmdlog wraps CLI subcommands with run/error accounting.
package cmdlog

import (
	"time"

	"engagelens/internal/logging"
	"engagelens/internal/metrics"
)

// Run executes f as subcommand cmd, counting runs and errors and logging the
// outcome with its duration.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	fields := map[string]any{"cmd": cmd, "duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		metrics.IncCommandError(cmd)
		fields["error"] = err.Error()
		logging.Error(cmd+"_error", fields)
	} else {
		logging.Info(cmd+"_ok", fields)
	}
	return err
}
