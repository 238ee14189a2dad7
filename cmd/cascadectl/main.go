// cascadectl - command line front end for the cascadeflow engine.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/cascadeflow/cascadeflow-go/internal/cascade"
	"github.com/cascadeflow/cascadeflow-go/internal/chat"
	"github.com/cascadeflow/cascadeflow-go/internal/complexity"
	"github.com/cascadeflow/cascadeflow-go/internal/config"
	"github.com/cascadeflow/cascadeflow-go/internal/ledger"
	"github.com/cascadeflow/cascadeflow-go/internal/provider"
	"github.com/cascadeflow/cascadeflow-go/internal/quality"
	"github.com/cascadeflow/cascadeflow-go/internal/toolrisk"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const usage = `cascadectl - cost-aware model cascading

Usage:
  cascadectl ask [-domain tag] <prompt>     Run one cascaded request
  cascadectl stream [-domain tag] <prompt>  Run one request, streaming
  cascadectl score <text>                   Score text with the quality heuristics
  cascadectl classify <query>               Show the complexity tier for a query
  cascadectl risk <tool> [tool...]          Classify tool names by risk
  cascadectl stats [-days n]                Show ledger cost totals
  cascadectl config                         Print the effective configuration
  cascadectl version                        Print version information

Environment:
  CASCADEFLOW_API_KEY    API key for the configured provider
  CASCADEFLOW_DRAFTER    Override the drafter model
  CASCADEFLOW_VERIFIER   Override the verifier model
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "ask":
		err = cmdAsk(os.Args[2:], false)
	case "stream":
		err = cmdAsk(os.Args[2:], true)
	case "score":
		err = cmdScore(os.Args[2:])
	case "classify":
		err = cmdClassify(os.Args[2:])
	case "risk":
		err = cmdRisk(os.Args[2:])
	case "stats":
		err = cmdStats(os.Args[2:])
	case "config":
		err = cmdConfig()
	case "version":
		fmt.Printf("cascadectl %s (%s, built %s)\n", Version, GitCommit, BuildDate)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "cascadectl: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// ASK / STREAM
// =============================================================================

func cmdAsk(args []string, streaming bool) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	domain := fs.String("domain", "", "domain tag for policy routing")
	fs.Parse(args)

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return fmt.Errorf("a prompt is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("no API key; set CASCADEFLOW_API_KEY")
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	o, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	req := &cascade.Request{
		Messages: []chat.Message{chat.User(prompt)},
		Options:  &provider.CallOptions{Timeout: cfg.Provider.Timeout()},
	}
	if *domain != "" {
		req.Metadata = map[string]any{"domain": *domain}
	}

	ctx := context.Background()
	var result *cascade.Result
	if streaming {
		result, err = o.Stream(ctx, req, func(c cascade.StreamChunk) {
			if c.Switched {
				fmt.Printf("\n--- %s ---\n", c.Content)
				return
			}
			fmt.Print(c.Content)
		})
		fmt.Println()
	} else {
		result, err = o.Run(ctx, req)
		if err == nil {
			fmt.Println(result.Message.Content)
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", result.String())
	return recordToLedger(cfg, result)
}

func buildOrchestrator(cfg *config.Config, logger *zap.Logger) (*cascade.Orchestrator, error) {
	engineCfg, err := cfg.CascadeConfig()
	if err != nil {
		return nil, err
	}

	clientOpts := []provider.ClientOption{
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithMaxRetries(cfg.Provider.MaxRetries),
		provider.WithLogger(logger),
	}
	if cfg.Provider.RequestsPerSecond > 0 {
		clientOpts = append(clientOpts, provider.WithRateLimit(cfg.Provider.RequestsPerSecond, 1))
	}

	drafter := provider.NewClient(cfg.Provider.APIKey, cfg.Drafter.Name, clientOpts...)
	verifier := provider.NewClient(cfg.Provider.APIKey, cfg.Verifier.Name, clientOpts...)

	return cascade.NewOrchestrator(engineCfg, drafter, verifier, cascade.WithLogger(logger))
}

func recordToLedger(cfg *config.Config, result *cascade.Result) error {
	if !cfg.Ledger.Enabled {
		return nil
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	// The percentage is relative to the verifier-only baseline; recover the
	// dollar figure from it.
	savings := 0.0
	if result.SavingsPercent != 0 && 100-result.SavingsPercent != 0 {
		baseline := result.TotalCost / (1 - result.SavingsPercent/100)
		savings = baseline - result.TotalCost
	}
	return l.Record(context.Background(), ledger.FromResult(result, savings))
}

// =============================================================================
// OFFLINE INSPECTION
// =============================================================================

func cmdScore(args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("text to score is required")
	}

	scorer := quality.NewScorer(quality.DefaultWeights())
	score := scorer.Score(chat.Assistant(text))
	fmt.Printf("score: %.3f\n", score)
	return nil
}

func cmdClassify(args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}

	tier := complexity.Classify(query, 0)
	eligible := complexity.Eligible(tier, complexity.DefaultCascadeTiers())
	fmt.Printf("tier: %s\ncascade eligible: %v\n", tier, eligible)
	return nil
}

func cmdRisk(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("at least one tool name is required")
	}

	classifier := toolrisk.NewClassifier()
	for _, name := range args {
		cls := classifier.Classify(chat.ToolDefinition{Name: name})
		flag := ""
		if cls.Tier.ForcesEscalation() {
			flag = "  [forces verifier]"
		}
		fmt.Printf("%-24s %-8s confidence=%.2f%s\n", name, cls.Tier, cls.Confidence, flag)
	}
	return nil
}

func cmdStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	days := fs.Int("days", 30, "window size in days")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := context.Background()
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -*days)

	totals, err := l.Totals(ctx, from, to)
	if err != nil {
		return err
	}

	fmt.Printf("last %d days\n", *days)
	fmt.Printf("  requests:        %d\n", totals.Requests)
	fmt.Printf("  drafts accepted: %d\n", totals.DraftsAccepted)
	fmt.Printf("  total cost:      $%.4f\n", totals.TotalCost)
	fmt.Printf("  total savings:   $%.4f\n", totals.TotalSavings)

	byModel, err := l.ByModel(ctx, from, to)
	if err != nil {
		return err
	}
	if len(byModel) > 0 {
		fmt.Println("by model:")
		for _, mt := range byModel {
			fmt.Printf("  %-24s %6d requests  $%.4f\n", mt.Model, mt.Requests, mt.TotalCost)
		}
	}
	return nil
}

func cmdConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Never print credentials.
	cfg.Provider.APIKey = ""
	return toml.NewEncoder(os.Stdout).Encode(cfg)
}
