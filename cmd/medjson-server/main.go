package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ehr/medjson/internal/config"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(fsys afero.Fs) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "medjson-server",
		Short:        "Medical record intake server backed by JSON files",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd(fsys))
	rootCmd.AddCommand(recordsCmd(fsys))
	return rootCmd
}

func serveCmd(fsys afero.Fs) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(fsys)
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func runServer(fsys afero.Fs) error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logger
	logger := newLogger(cfg)

	a := newApp(cfg, logger, fsys)
	if err := a.prepare(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare media directories")
	}
	logger.Info().
		Str("records_dir", cfg.RecordsPath()).
		Str("uploads_dir", cfg.UploadsPath()).
		Msg("media directories ready")

	e, err := a.router()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build router")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
