package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rogeecn/otpfetch/internal/account"
	"github.com/rogeecn/otpfetch/internal/batch"
	"github.com/rogeecn/otpfetch/internal/config"
	"github.com/rogeecn/otpfetch/internal/mailbox"
	"github.com/rogeecn/otpfetch/internal/metrics"
	"github.com/rogeecn/otpfetch/internal/oauth"
	"github.com/rogeecn/otpfetch/internal/transport"
	"github.com/rs/zerolog/log"
)

type pipeline interface {
	ProcessCredential(ctx context.Context, index int, cred account.Credential) batch.Outcome
	StreamLines(ctx context.Context, lines []string, emit func(batch.Outcome)) []batch.Outcome
	StreamCredentials(ctx context.Context, creds []account.Credential, emit func(batch.Outcome)) []batch.Outcome
}

type Server struct {
	config     *config.Config
	pipeline   pipeline
	registry   *prometheus.Registry
	httpServer *http.Server

	serveFn    func() error
	shutdownFn func(ctx context.Context) error
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p, err := NewPipeline(cfg, metrics.New(registry))
	if err != nil {
		return nil, err
	}

	return newWithPipeline(cfg, p, registry), nil
}

// NewPipeline wires the token exchanger and mailbox reader into a batch
// orchestrator using cfg. It is shared by the server and the CLI.
func NewPipeline(cfg *config.Config, m *metrics.Metrics) (*batch.Orchestrator, error) {
	httpClient, err := transport.NewHTTPClient(cfg.Proxy, cfg.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("new pipeline: %w", err)
	}

	exchanger := oauth.NewExchanger(httpClient, cfg.TokenURL, cfg.Scope, m)
	reader := mailbox.NewReader(httpClient, cfg.GraphBaseURL, m)

	return batch.New(exchanger, reader, batch.Options{
		Concurrency:     cfg.Concurrency,
		MessageLimit:    cfg.MessageLimit,
		AccountTimeout:  cfg.AccountTimeout,
		SortNewestFirst: cfg.SortNewestFirst,
		Metrics:         m,
	}), nil
}

func newWithPipeline(cfg *config.Config, p pipeline, registry *prometheus.Registry) *Server {
	s := &Server{
		config:   cfg,
		pipeline: p,
		registry: registry,
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.setupRoutes(),
	}
	s.serveFn = s.httpServer.ListenAndServe
	s.shutdownFn = s.httpServer.Shutdown

	return s
}

func (s *Server) Start() error {
	log.Info().
		Str("addr", s.httpServer.Addr).
		Int("concurrency", s.config.Concurrency).
		Msg("http server starting")

	if err := s.serveFn(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.shutdownFn(ctx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("stop server: %w", err)
	}
	return nil
}
