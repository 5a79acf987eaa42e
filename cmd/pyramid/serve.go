package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JeremyIV/summary-pyramid/internal/api"
	"github.com/JeremyIV/summary-pyramid/internal/config"
	"github.com/JeremyIV/summary-pyramid/internal/pipeline"
	"github.com/JeremyIV/summary-pyramid/internal/segment"
	"github.com/JeremyIV/summary-pyramid/internal/summarize"
	"github.com/JeremyIV/summary-pyramid/internal/tokens"
	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the async HTTP query service",
	Long: `Serve exposes both strategies over HTTP: clients upload a document with a
query, poll job status, and fetch the answer once the job completes.

Configuration comes from environment variables; PYRAMID_API_KEY and
ANTHROPIC_API_KEY are required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if servePort != "" {
		cfg.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	claude := summarize.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.RequestRPM)

	var measurer tokens.Measurer
	rpm := 0
	switch cfg.TokenCounter {
	case "local":
		tm, err := tokens.NewTiktokenMeasurer(cfg.TokenEncoding)
		if err != nil {
			return fmt.Errorf("load token encoding: %w", err)
		}
		measurer = tm
	case "api":
		measurer = tokens.MeasureFunc(claude.CountTokens)
		rpm = cfg.CountTokensRPM
	}
	meter := tokens.NewMeter(measurer, rpm, log)
	seg := segment.New(meter, log)

	orch := pipeline.NewOrchestrator(cfg, claude, seg, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, claude, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		claude.Close()
	}()

	log.Info("starting query service", "port", cfg.Port, "workers", cfg.WorkerCount, "token_counter", cfg.TokenCounter)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
