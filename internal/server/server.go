// Package server exposes the API Gateway handlers over plain HTTP for local
// development.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/api"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

type Config struct {
	ListenAddr string
	// DevUser is injected as the authenticated caller of every request.
	DevUser string
}

type HTTPServer struct {
	cfg        Config
	router     *chi.Mux
	httpServer *http.Server
	logger     *zap.Logger
}

func New(cfg Config, routes []api.Route, functions map[string]api.Handler, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	s := &HTTPServer{
		cfg:    cfg,
		router: r,
		logger: logger.With(zap.String("component", "http")),
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	preflight := map[string]bool{}
	for _, route := range routes {
		handler, ok := functions[route.Function]
		if !ok {
			continue
		}
		r.Method(route.Method, route.Pattern, s.adapt(handler))

		if !preflight[route.Pattern] {
			r.Options(route.Pattern, s.adapt(handler))
			preflight[route.Pattern] = true
		}
	}

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.ListenAddr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	s.logger.Info("http server was shutdown gracefully")
	return nil
}

// adapt turns an HTTP request into the proxy event API Gateway would send.
func (s *HTTPServer) adapt(handler api.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}

		req := events.APIGatewayProxyRequest{
			HTTPMethod:            r.Method,
			Path:                  r.URL.Path,
			Headers:               map[string]string{},
			QueryStringParameters: map[string]string{},
			PathParameters:        map[string]string{},
			Body:                  string(body),
		}
		for name := range r.Header {
			req.Headers[name] = r.Header.Get(name)
		}
		for name := range r.URL.Query() {
			req.QueryStringParameters[name] = r.URL.Query().Get(name)
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				req.PathParameters[key] = rctx.URLParams.Values[i]
			}
		}
		if s.cfg.DevUser != "" {
			req.RequestContext.Authorizer = map[string]any{
				"claims": map[string]any{"sub": s.cfg.DevUser},
			}
		}

		resp, err := handler(r.Context(), req)
		if err != nil {
			s.logger.Error("handler failed", zap.Error(err))
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		for name, value := range resp.Headers {
			w.Header().Set(name, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = io.WriteString(w, resp.Body)
		}
	}
}
