package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"signalzero/internal/config"
	"signalzero/internal/messaging"
	"signalzero/internal/pipeline"
	"signalzero/internal/transport"
)

var (
	// Global flags
	verbose    bool
	configPath string
	query      string
	platform   string
	jsonOut    bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "signalzero",
	Short: "SignalZero - social media manipulation analysis",
	Long: `SignalZero measures how much of a topic's online momentum is real.

Four signal agents (bot detection, trend analysis, review validation,
paid promotion detection) analyze a query in parallel over pub/sub and a
score aggregator reduces their findings to a single Reality Score:
GREEN (authentic), YELLOW (mixed signals) or RED (heavily manipulated).

Agents prefer the configured broker and silently fall back to an
in-process bus when it is unreachable.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// agentsCmd runs the full agent fleet until interrupted.
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Run the signal agents and score aggregator",
	Long: `Starts every enabled agent and keeps them serving analysis requests
until SIGINT/SIGTERM. With a reachable broker the agents serve external
requests; without one they only serve in-process callers.`,
	RunE: runAgents,
}

// analyzeCmd runs one analysis end to end.
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a query and print its Reality Score",
	Long: `Runs one query through the full pipeline: the four signal agents in
parallel, then the score aggregator. Starts an in-process agent fleet for
the duration of the call, so no running broker or fleet is required.

Example:
  signalzero analyze --query "stanley cup" --platform twitter`,
	RunE: runAnalyze,
}

// statusCmd prints a point-in-time health snapshot of an agent fleet.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Start the agents and print their health snapshots",
	RunE:  runStatus,
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fallback := transport.NewMemoryBus(cfg.Agents.DispatchLimit, logger)
	defer fallback.Close()

	agents := pipeline.BuildAgents(cfg, fallback, logger)
	if len(agents) == 0 {
		return fmt.Errorf("all agents disabled by configuration")
	}
	for _, a := range agents {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start agent: %w", err)
		}
	}
	logger.Info("agent fleet running", zap.Int("agents", len(agents)))

	<-ctx.Done()
	logger.Info("shutting down")
	for _, a := range agents {
		if err := a.Stop(); err != nil {
			logger.Warn("agent stop failed", zap.Error(err))
		}
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	p, err := messaging.ParsePlatform(platform)
	if err != nil {
		return err
	}
	if query == "" {
		return fmt.Errorf("--query is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fallback := transport.NewMemoryBus(cfg.Agents.DispatchLimit, logger)
	defer fallback.Close()

	agents := pipeline.BuildAgents(cfg, fallback, logger)
	for _, a := range agents {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start agent: %w", err)
		}
	}
	defer func() {
		for _, a := range agents {
			_ = a.Stop()
		}
	}()

	coord := pipeline.NewCoordinator(cfg, fallback, logger)
	if err := coord.Start(); err != nil {
		return err
	}
	defer coord.Close()

	report, err := coord.Analyze(ctx, query, p)
	if err != nil {
		return err
	}
	return printReport(cmd, report)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fallback := transport.NewMemoryBus(cfg.Agents.DispatchLimit, logger)
	defer fallback.Close()

	agents := pipeline.BuildAgents(cfg, fallback, logger)
	for _, a := range agents {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start agent: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	for _, a := range agents {
		st := a.GetStatus()
		if jsonOut {
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			continue
		}
		fmt.Fprintf(out, "%-18s %-10s transport=%-8s processed=%d errors=%d uptime=%.1fs\n",
			st.AgentType, st.State, st.TransportMode,
			st.ProcessingCount, st.ErrorCount, st.UptimeSeconds)
	}

	for _, a := range agents {
		_ = a.Stop()
	}
	return nil
}

func printReport(cmd *cobra.Command, report *pipeline.Report) error {
	out := cmd.OutOrStdout()
	if jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Query:              %s\n", report.Query)
	fmt.Fprintf(out, "Platform:           %s\n", report.Platform)
	fmt.Fprintf(out, "Reality Score:      %.2f / 100\n", report.RealityScore)
	fmt.Fprintf(out, "Manipulation Level: %s\n", report.ManipulationLevel)
	fmt.Fprintf(out, "Confidence:         %.2f%%\n", report.Confidence)
	fmt.Fprintf(out, "Elapsed:            %s\n", report.Elapsed.Round(time.Millisecond))
	fmt.Fprintln(out)

	for _, t := range messaging.SignalAgents {
		resp, ok := report.AgentResults[t]
		if !ok {
			fmt.Fprintf(out, "  %-18s (no response, neutral %.0f substituted)\n", t, messaging.NeutralScore)
			continue
		}
		fmt.Fprintf(out, "  %-18s score=%-7.2f confidence=%-7.2f status=%s\n",
			t, resp.Score, resp.Confidence, resp.Status)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	analyzeCmd.Flags().StringVarP(&query, "query", "q", "", "Topic, product or trend to analyze")
	analyzeCmd.Flags().StringVarP(&platform, "platform", "p", "all", "Platform scope (twitter, reddit, instagram, youtube, amazon, all)")
	analyzeCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full report as JSON")
	statusCmd.Flags().BoolVar(&jsonOut, "json", false, "Print snapshots as JSON")

	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
