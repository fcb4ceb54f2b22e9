package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/serisow/claimdesk/config"
	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/server"
)

var (
	logLevel string

	serveWatch bool

	askJSON bool
	askMode string

	watchOnce bool
)

var rootCmd = &cobra.Command{
	Use:   "claimdesk",
	Short: "Answer insurance claim questions from policy documents",
	Long: `claimdesk indexes policy documents into a vector store and decides
natural language claim questions against the retrieved policy clauses.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [document]",
	Short: "Index a document (URL or local path)",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask [document] [question]...",
	Short: "Answer questions about a document",
	Long: `Indexes the document if needed, then answers every question in order.
In claim mode each question is decided against the policy clauses.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index every document of the source folder, periodically",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "also index the source documents folder periodically")

	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the full answers as JSON")
	askCmd.Flags().StringVar(&askMode, "mode", "", "claim or answer (default from DEFAULT_MODE)")

	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "scan the folder once and exit")

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}

// level returns the --log-level value, or fallback when it is not set.
func level(fallback slog.Level) (slog.Level, error) {
	if logLevel == "" {
		return fallback, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(logLevel)); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	return l, nil
}

func start(cmd *cobra.Command, fallback slog.Level) (*application, error) {
	l, err := level(fallback)
	if err != nil {
		return nil, err
	}
	return newApplication(cmd.Context(), config.Load(), l)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := start(cmd, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer app.Close()
	ctx := cmd.Context()

	app.executions.StartCleanup(app.cfg.ExecutionRetention, time.Hour)

	if app.indexManager != nil {
		if err := app.indexManager.CreateOrUpdateIndex(ctx); err != nil {
			app.logger.Error("Failed to prepare the vector index", slog.String("error", err.Error()))
		}
	}
	if serveWatch {
		go app.newScheduler().Start(ctx)
	}

	srvCfg := server.Config{
		Domains:        app.cfg.Domains,
		CertCacheDir:   app.cfg.CertCacheDir,
		HTTPPort:       app.cfg.HTTPPort,
		RequestTimeout: app.cfg.RequestTimeout,
	}
	if srvCfg.RequestTimeout <= app.cfg.IngestTimeout {
		app.logger.Warn("REQUEST_TIMEOUT does not leave time for questions after a first ingestion",
			slog.Duration("request_timeout", srvCfg.RequestTimeout),
			slog.Duration("ingest_timeout", app.cfg.IngestTimeout))
	}
	r := server.SetupRoutes(server.Services{
		Runner:     app.runner,
		Ingestor:   app.coordinator,
		Retriever:  app.retriever,
		Executions: app.executions,
	}, srvCfg, app.logger)
	n := server.SetupNegroni(r, app.logger)

	if app.cfg.Environment == "production" {
		return server.ServeProduction(ctx, n, srvCfg, app.logger)
	}
	return server.ServeDevelopment(ctx, n, srvCfg, app.logger)
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, err := start(cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := app.coordinator.EnsureIndexed(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if resp.Cached {
		cmd.Printf("%s is already indexed (%d chunks)\n", resp.Document, resp.Metadata.ChunkCount)
		return nil
	}
	cmd.Printf("Indexed %s: %d pages, %d chunks\n", resp.Document, resp.Metadata.PageCount, resp.Metadata.ChunkCount)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := start(cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.runner.Run(cmd.Context(), pipeline_type.RunRequest{
		Document:  args[0],
		Questions: args[1:],
		Mode:      pipeline_type.Mode(askMode),
	})
	if err != nil {
		return err
	}

	if askJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answers: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	for i, answer := range result.Answers {
		cmd.Printf("[%d] %s\n", i+1, answer.Question)
		if answer.Decision != nil {
			cmd.Printf("    %s, amount %.2f\n", answer.Decision.Decision, answer.Decision.Amount)
		}
		cmd.Println(indent(answer.Reply, "    "))
		cmd.Println()
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	app, err := start(cmd, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer app.Close()

	s := app.newScheduler()
	if watchOnce {
		report, err := s.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("found %d, indexed %d, cached %d, failed %d\n", report.Found, report.Indexed, report.Cached, report.Failed)
		if report.Failed > 0 {
			return fmt.Errorf("%d documents failed to index", report.Failed)
		}
		return nil
	}
	s.Start(cmd.Context())
	return nil
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
