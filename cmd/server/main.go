package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/avatar-gateway/internal/asset"
	"github.com/lexiqai/avatar-gateway/internal/config"
	"github.com/lexiqai/avatar-gateway/internal/expression"
	"github.com/lexiqai/avatar-gateway/internal/llm"
	"github.com/lexiqai/avatar-gateway/internal/observability"
	"github.com/lexiqai/avatar-gateway/internal/pipeline"
	"github.com/lexiqai/avatar-gateway/internal/resilience"
	"github.com/lexiqai/avatar-gateway/internal/rpc"
	"github.com/lexiqai/avatar-gateway/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("ollama_url", cfg.OllamaURL).
		Str("ollama_model", cfg.OllamaModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Avatar Gateway Service starting")

	// Expression lexicon
	lexicon := expression.DefaultLexicon()
	if cfg.LexiconPath != "" {
		lexicon, err = expression.LoadLexicon(cfg.LexiconPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.LexiconPath).Msg("Failed to load expression lexicon")
		}
		logger.Info().Int("triggers", len(lexicon.Angry)).Str("path", cfg.LexiconPath).Msg("Expression lexicon loaded")
	}
	analyzer := pipeline.NewAnalyzer(lexicon)

	// Assets
	if cfg.AssetDir != "" {
		missing, err := asset.VerifyDir(cfg.AssetDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("Asset directory unusable")
		}
		if len(missing) > 0 {
			logger.Warn().Strs("missing", missing).Msg("Asset directory is incomplete")
		}
	}

	// Text generation backend
	backend := llm.NewOllamaClient(cfg)

	// Probe the backend at startup; the service still starts if it is down
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 30*time.Second)
	probeLogger := observability.Component("startup")
	err = resilience.Reconnect(probeCtx, backend.Healthy, &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Second,
		Logger:      &probeLogger,
	})
	cancelProbe()
	if err != nil {
		logger.Warn().Err(err).Msg("Text backend not reachable yet, continuing")
	}

	// Readiness checks
	checks := []observability.DependencyCheck{
		{Name: "ollama", Check: backend.Healthy},
	}
	if cfg.AssetDir != "" {
		checks = append(checks, observability.DependencyCheck{
			Name: "assets",
			Check: func(ctx context.Context) error {
				missing, err := asset.VerifyDir(cfg.AssetDir)
				if err != nil {
					return err
				}
				if len(missing) > 0 {
					return fmt.Errorf("%d asset files missing", len(missing))
				}
				return nil
			},
		})
	}

	// HTTP server
	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     server.New(cfg, backend, analyzer).Routes(checks...),
		ReadTimeout: 15 * time.Second,
		// Chat responses stream for up to the backend timeout
		WriteTimeout: cfg.BackendTimeoutDuration() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/avatar", cfg.Port)).
			Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed to start")
		}
	}()

	// gRPC server
	grpcServer, healthServer := rpc.NewServer(rpc.NewService(analyzer, asset.NewResolver(cfg.AssetBasePath)))
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("Failed to listen for gRPC")
		}
		go func() {
			logger.Info().Str("port", cfg.GRPCPort).Str("service", rpc.ServiceName).Msg("gRPC server listening")
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC server stopped")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the servers
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down servers...")
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	select {
	case <-stopped:
	case <-ctx.Done():
		grpcServer.Stop()
	}

	logger.Info().Msg("Servers exited gracefully")
}
