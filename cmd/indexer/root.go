package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/process-failed-successfully/codegraph-indexer/internal/config"
	"github.com/process-failed-successfully/codegraph-indexer/internal/db"
	"github.com/process-failed-successfully/codegraph-indexer/internal/git"
	"github.com/process-failed-successfully/codegraph-indexer/internal/graph"
	"github.com/process-failed-successfully/codegraph-indexer/internal/jobengine"
	"github.com/process-failed-successfully/codegraph-indexer/internal/notify"
	"github.com/process-failed-successfully/codegraph-indexer/internal/parse"
	"github.com/process-failed-successfully/codegraph-indexer/internal/parse/goparser"
	"github.com/process-failed-successfully/codegraph-indexer/internal/parse/sandbox"
	"github.com/process-failed-successfully/codegraph-indexer/internal/runner"
	"github.com/process-failed-successfully/codegraph-indexer/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exit = os.Exit
var cfgFile string
var engineCfg *config.EngineConfig

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "codegraph-indexer: job orchestration engine for the code knowledge graph",
	Long: `indexer runs the code knowledge graph's job orchestration engine: it
clones and parses codebases, processes docs, discovers APIs and user
flows, and writes the results into a graph store, one job at a time
per codebase.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to rootCmd and runs it. Called once by
// main.main().
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n=== CRITICAL ERROR: Command Execution Panic ===\n")
			fmt.Fprintf(os.Stderr, "Error: %v\n", r)
			exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().Int("max-concurrent", 0, "override jobs.maxConcurrent")
	rootCmd.PersistentFlags().String("store-type", "", "override store.type (sqlite|postgres)")
	rootCmd.PersistentFlags().String("store-dsn", "", "override store.connectionString")
	rootCmd.PersistentFlags().Int("port", 0, "override server.port")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobCmd)
}

// initConfig loads EngineConfig from defaults+file+env, layers CLI flag
// overrides on top, validates it, and brings up logging/metrics. It runs
// once before any subcommand's RunE.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
	config.BindFlags(rootCmd.PersistentFlags(), cfg)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
	engineCfg = cfg

	telemetry.InitLogger(viper.GetBool("verbose"), "")

	if flag.Lookup("test.v") == nil {
		go func() {
			if err := telemetry.StartMetricsServer(9090); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to start metrics server: %v\n", err)
			}
		}()
	}
}

// engine bundles the orchestrator with the resources that must be closed
// on shutdown.
type engine struct {
	orch  *jobengine.JobOrchestrator
	repos db.Repositories
	graph graph.Sink
	pool  *runner.Pool
}

func (e *engine) Close() {
	e.pool.Shutdown(true)
	_ = e.graph.Close(context.Background())
	_ = e.repos.Close()
}

// buildEngine wires db/git/graph/parse/notify/runner together into a
// running JobOrchestrator, grounded on the teacher's pattern of a single
// composition root shared by every subcommand.
func buildEngine() (*engine, error) {
	logger := slog.Default()

	repos, err := db.NewRepositories(db.StoreConfig{
		Type:             engineCfg.Store.Type,
		ConnectionString: engineCfg.Store.ConnectionString,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sink := graph.NewNeo4jSink()
	if err := sink.Connect(context.Background(), graph.Config{
		URI:      engineCfg.Graph.URI,
		Username: engineCfg.Graph.Username,
		Password: engineCfg.Graph.Password,
	}); err != nil {
		logger.Warn("graph sink connect failed, continuing degraded", "error", err)
	}

	parsers := map[string]parse.Parser{
		"go": goparser.New(),
	}
	sandboxRunner := sandbox.New(nil, 30*time.Second)
	for lang, lc := range engineCfg.Parser.Languages {
		if lang == "go" || !lc.Enabled {
			continue
		}
		parsers[lang] = sandboxRunner
	}

	manager := runner.NewManager(logger)
	pool, err := manager.CreatePool("jobs", engineCfg.Jobs.MaxConcurrent, engineCfg.Jobs.DefaultTimeoutMs)
	if err != nil {
		return nil, fmt.Errorf("create job pool: %w", err)
	}

	deps := &jobengine.Collaborators{
		Git:      git.NewExecClient(),
		Parsers:  parsers,
		Graph:    sink,
		Jobs:     repos.Jobs,
		Projects: repos.Projects,
		Codebase: repos.Codebases,
		Notifier: notify.NewLoggingNotifier(logger),
		Clock:    jobengine.SystemClock{},
		IDGen:    jobengine.UUIDGen{},
		Logger:   logger,
	}

	orch := jobengine.NewJobOrchestrator(deps, engineCfg, pool)
	return &engine{orch: orch, repos: repos, graph: sink, pool: pool}, nil
}
