package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", chain(
		http.HandlerFunc(s.handleHealth),
		RequestIDMiddleware,
		LoggingMiddleware,
	))

	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	api := []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/api/fetch-otps", s.handleFetchOTPs},
		{"/api/fetch-batch", s.handleFetchBatch},
		{"/api/fetch-batch/stream", s.handleFetchBatchStream},
		{"/api/preview", s.handlePreview},
	}
	for _, route := range api {
		mux.Handle(route.path, chain(
			route.handler,
			RequestIDMiddleware,
			LoggingMiddleware,
			RequestSizeLimitMiddleware(defaultMaxBodySize),
		))
	}

	return cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(mux)
}

func (s *Server) allowedOrigins() []string {
	if s.config == nil || len(s.config.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.config.CORSOrigins
}

func chain(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}
