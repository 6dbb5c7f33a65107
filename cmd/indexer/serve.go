package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// serveCmd keeps an orchestrator alive so its worker pool can drain
// jobs submitted by other processes against the same store. The engine
// itself has no network listener of its own yet (spec.md's external
// interfaces are programmatic, not HTTP); serve exists to host the pool
// and the metrics/health surface long enough for job create/cancel/list
// run elsewhere against the same database to be picked up.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the job orchestration engine until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return fmt.Errorf("build engine: %w", err)
		}
		defer eng.Close()

		fmt.Fprintf(os.Stderr, "indexer serving: max_concurrent=%d store=%s\n",
			engineCfg.Jobs.MaxConcurrent, engineCfg.Store.Type)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		fmt.Fprintln(os.Stderr, "indexer: shutting down, draining in-flight jobs...")
		return nil
	},
}
