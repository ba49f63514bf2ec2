package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"prodscout/internal/config"
	"prodscout/internal/enrich"
	"prodscout/internal/httpapi"
	"prodscout/internal/judge"
	"prodscout/internal/llm"
	"prodscout/internal/scrape"
	"prodscout/internal/search"
	"prodscout/internal/session"
	"prodscout/internal/transport"
)

var (
	// Global flags
	verbose    bool
	configPath string

	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd starts the interactive chat when run without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "prodscout",
	Short: "prodscout - web-grounded consumer product research chat",
	Long: `prodscout is a chat assistant for consumer product research.

When you mention a product or paste a link, it scrapes the relevant pages and
feeds their text to the model before answering, so recommendations are
grounded in live web content rather than training data alone.

Run without arguments to start an interactive chat on the terminal.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		zapCfg := zap.NewProductionConfig()
		if cfg.Logging.Format == "console" {
			zapCfg = zap.NewDevelopmentConfig()
		}
		if verbose || cfg.Logging.Level == "debug" {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
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
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP",
	Long: `Starts the HTTP API. Sessions are created with POST /sessions and torn
down with DELETE /sessions/{id}; replies to POST /sessions/{id}/messages are
streamed back as server-sent events.`,
	RunE: runServe,
}

var judgeCmd = &cobra.Command{
	Use:   "judge [transcript.json...]",
	Short: "Score recorded transcripts against the research rubric",
	Long: `Batch-grades conversation transcripts. Each file is scored by the
configured model on information extraction and source quality; results print
as JSON lines.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJudge,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "prodscout.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(judgeCmd)
}

// newLLMClient builds the completion client from config.
func newLLMClient() *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: config.ParseDuration(cfg.LLM.Timeout, 2*time.Minute),
	}, logger)
}

// buildRegistry wires the enrichment pipeline and LLM client into a session
// registry from config.
func buildRegistry() *session.Registry {
	searcher := search.NewResolver(logger,
		search.WithBaseURL(cfg.Search.BaseURL),
		search.WithHTTPClient(&http.Client{Timeout: config.ParseDuration(cfg.Search.Timeout, 15*time.Second)}),
	)
	extractor := scrape.NewExtractor(logger,
		scrape.WithHTTPClient(&http.Client{Timeout: config.ParseDuration(cfg.Scrape.Timeout, 15*time.Second)}),
		scrape.WithTextLimit(cfg.Scrape.TextLimit),
	)
	resolver := enrich.NewResolver(searcher, extractor, logger)

	opts := session.Options{
		EnableSystemPrompt:   cfg.Chat.EnableSystemPrompt,
		EnableProductContext: cfg.Chat.EnableProductContext,
		GenParams: llm.GenParams{
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.MaxTokens,
		},
	}
	return session.NewRegistry(resolver, newLLMClient(), opts, logger)
}

func runInteractiveChat() error {
	registry := buildRegistry()
	sess := registry.Create()
	defer registry.Remove(sess.ID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	bold := color.New(color.FgGreen, color.Bold).SprintFunc()
	fmt.Printf("%s model=%s\n", bold("prodscout"), cfg.LLM.Model)
	fmt.Println("Ask about a product or paste links. Type 'exit' or Ctrl+C to quit.")
	fmt.Println()

	cli := transport.NewCLI(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if _, err := sess.HandleUserTurn(ctx, line, cli); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			color.Red("error: %v", err)
		}
	}
	return scanner.Err()
}

func runServe(cmd *cobra.Command, args []string) error {
	registry := buildRegistry()
	api := httpapi.NewServer(registry, logger)

	srv := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: api.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", zap.String("addr", cfg.HTTP.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runJudge(cmd *cobra.Command, args []string) error {
	j := judge.New(newLLMClient(), logger)

	ctx := context.Background()
	failures := 0
	for _, path := range args {
		scores, err := j.EvaluateFile(ctx, path)
		if err != nil {
			logger.Error("transcript failed", zap.String("file", path), zap.Error(err))
			failures++
			continue
		}
		for _, sc := range scores {
			fmt.Printf("{\"file\":%q,\"key\":%q,\"score\":%.2f,\"reason\":%q}\n", path, sc.Key, sc.Score, sc.Reason)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d transcript(s) failed", failures)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
