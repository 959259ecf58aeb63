// Command scriptx applies versioned SQL scripts to a database.
//
// Usage:
//
//	scriptx [--config scriptx.yaml] <command>
//
// Commands:
//   - migrate: apply pending scripts in version order
//   - status: list catalog scripts as APPLIED or PENDING
//   - verify: report applied scripts that were removed or modified
//   - config show: print the effective configuration
//   - version: print the build version
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		exitWithError(err)
	}
}
