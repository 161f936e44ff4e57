package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gemini-proxy/handler"
	"gemini-proxy/internal/config"
	"gemini-proxy/internal/integrations/gemini"
	"gemini-proxy/internal/integrations/paramstore"
	"gemini-proxy/internal/logging"
	"gemini-proxy/internal/usecase"
)

func main() {
	ctx := context.Background()
	zerolog.TimeFieldFormat = time.RFC3339Nano

	// ---- Configuration (read only here) ----
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log configuration")
	}
	log.Logger = logger

	if cfg.NeedsSecretLookup() {
		cfg, err = resolveSecret(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read API key from parameter store")
		}
	}
	if cfg.APIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set; /api/generate will return 500")
	}

	// ---- Clients ----
	client := gemini.NewClient(cfg.APIKey,
		gemini.WithBaseURL(cfg.BaseURL),
		gemini.WithAPIVersion(cfg.APIVersion),
		gemini.WithModel(cfg.Model),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
	)

	// ---- Handler ----
	svc, err := usecase.NewGenerateService(client)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create generate service")
	}
	h, err := handler.NewHandler(svc, handler.WithLogger(logger), handler.WithMaxBodyBytes(cfg.MaxBodyBytes))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create handler")
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		log.Info().Str("upstream", client.Endpoint()).Msg("starting lambda handler")
		lambda.Start(h.Handle)
		return
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      h.Routes(cfg.StaticDir),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("url", "http://localhost:"+cfg.Port).
			Str("static_dir", cfg.StaticDir).
			Str("upstream", client.Endpoint()).
			Msg("server is running")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	waitForShutdown(ctx, server, cfg.GracefulShutdownTimeout)
}

func resolveSecret(ctx context.Context, cfg config.Config) (config.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return cfg, err
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return cfg, err
	}
	return cfg.WithSecret(ctx, ssmClient)
}

func waitForShutdown(ctx context.Context, srv *http.Server, timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	log.Info().Msg("server stopped")
}
