package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/lexflow/lexflow/internal/cache"
	"github.com/lexflow/lexflow/internal/capability"
	"github.com/lexflow/lexflow/internal/config"
	"github.com/lexflow/lexflow/internal/engine"
	"github.com/lexflow/lexflow/internal/intent"
	"github.com/lexflow/lexflow/internal/llm"
	"github.com/lexflow/lexflow/internal/orchestrator"
	"github.com/lexflow/lexflow/internal/planner"
	"github.com/lexflow/lexflow/internal/queue"
	"github.com/lexflow/lexflow/internal/state"
)

var (
	runMatter string
	runJSON   bool
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run a legal request through the agent pipeline",
	Long: `Run a natural-language legal request.

The request is classified into an intent, expanded into an execution
plan across the required agents, and executed with dependency ordering.
Progress streams to stdout; repeated requests within the cache window
are answered from the result cache without re-running agents.

Examples:
  lexflow run "research the statute of limitations for breach of contract"
  lexflow run --matter smith-v-jones "draft a memo about successor liability"
  lexflow run --json "review the produced correspondence" > events.ndjson`,
	Args: cobra.ExactArgs(1),
	RunE: runRequest,
}

func init() {
	runCmd.Flags().StringVar(&runMatter, "matter", "", "Matter ID to scope the request (empty for general scope)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Emit the raw newline-delimited JSON event stream")
}

func runRequest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var apiKey string
	if !cfg.Anthropic.UseAWSBedrock {
		apiKey, err = config.GetAPIKey(cfg)
		if err != nil {
			return fmt.Errorf("%w (set ANTHROPIC_API_KEY or run 'lexflow config anthropic.api_key <key>')", err)
		}
	}

	client, err := llm.NewClient(llm.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return fmt.Errorf("configure model access: %w", err)
	}

	o, db, err := buildOrchestrator(cfg, client)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink io.Writer
	if runJSON {
		sink = os.Stdout
	} else {
		sink = newProgressPrinter(os.Stderr)
	}

	result, err := o.HandleRequest(ctx, runMatter, args[0], sink)
	if err != nil {
		return err
	}

	if !runJSON {
		fmt.Println(result.Summary)
	}
	return nil
}

// buildOrchestrator assembles the component stack from configuration.
func buildOrchestrator(cfg *config.Config, completer llm.Completer) (*orchestrator.Orchestrator, *state.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	registry, err := capability.NewRegistry(completer)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("load capabilities: %w", err)
	}

	q := queue.New(db)
	resultCache := cache.New(db, cache.WithTTL(cfg.Cache.TTL))
	eng := engine.New(q, db, resultCache, registry, engine.NewArena(),
		engine.WithDependencyTimeout(cfg.Engine.DependencyTimeout))

	logger, err := orchestrator.NewDebugLogger(orchestrator.DefaultLogPath())
	if err != nil {
		logger = orchestrator.NopLogger()
	}

	o := orchestrator.New(
		intent.NewAnalyzer(completer),
		planner.NewBuilder(registry.BaseDurations()),
		eng,
		db,
		q,
		logger,
	)
	return o, db, nil
}
