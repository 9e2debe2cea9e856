package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rogeecn/otpfetch/internal/config"
	"github.com/rogeecn/otpfetch/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type serveRunner interface {
	Start() error
	Stop(ctx context.Context) error
}

var (
	serveHost        string
	servePort        int
	serveConcurrency int
)

var (
	newServeServer = func(cfg *config.Config) (serveRunner, error) {
		return server.New(cfg)
	}
	signalNotifyContext = signal.NotifyContext
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen address (default: OTPFETCH_HOST)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default: OTPFETCH_PORT)")
	serveCmd.Flags().IntVar(&serveConcurrency, "concurrency", 0, "accounts processed at once (default: OTPFETCH_CONCURRENCY)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort > 0 {
		cfg.Port = servePort
	}
	if serveConcurrency > 0 {
		cfg.Concurrency = serveConcurrency
	}

	log.Logger = config.InitLogger(cfg.LogLevel, false)
	log.Info().
		Str("log_level", cfg.LogLevel).
		Int("concurrency", cfg.Concurrency).
		Msg("logger initialized")

	srv, err := newServeServer(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	startErrCh := make(chan error, 1)
	go func() {
		startErrCh <- srv.Start()
	}()

	ctx, stop := signalNotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-startErrCh:
		if err != nil {
			log.Error().Err(err).Msg("serve exited with error")
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("serve shutdown failed")
			return err
		}

		select {
		case err := <-startErrCh:
			if err != nil {
				log.Error().Err(err).Msg("serve exited after shutdown with error")
			}
			return err
		case <-time.After(10 * time.Second):
			log.Error().Msg("serve shutdown timed out")
			return fmt.Errorf("shutdown timeout")
		}
	}
}
