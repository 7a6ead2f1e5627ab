// Package httpapi exposes the forwarding routes over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"telegramd/internal/domain"
)

// DefaultAddr is the loopback address the bridge listens on unless configured.
const DefaultAddr = "127.0.0.1:5005"

const shutdownTimeout = 5 * time.Second

// Forwarder delivers decoded requests to the platform.
type Forwarder interface {
	SendMessage(ctx context.Context, req domain.ForwardRequest) error
	Forward(ctx context.Context, chatID string, message *string, batch domain.UploadBatch) domain.ForwardOutcome
}

// Ingestor stores an uploaded multipart body.
type Ingestor interface {
	Ingest(ctx context.Context, mr *multipart.Reader) (domain.UploadBatch, error)
}

// Handler registers a group of routes.
type Handler interface {
	Register(e *echo.Echo)
}

type Config struct {
	Addr      string
	Forwarder Forwarder
	Ingestor  Ingestor

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "httpapi")
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	handlers := []Handler{
		NewMessageHandler(cfg.Forwarder, logger),
		NewFileHandler(cfg.Ingestor, cfg.Forwarder, logger),
		NewHealthHandler(cfg.Metrics),
	}
	for _, h := range handlers {
		h.Register(e)
	}

	return &Server{echo: e, addr: addr, logger: logger}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// ServeHTTP lets the server be driven directly by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run listens until ctx is cancelled and then shuts down gracefully.
// A bind failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.addr)
	}()
	s.logger.Info("HTTP listener started", "addr", s.addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listener on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-errCh
	s.logger.Info("HTTP listener stopped")
	return nil
}
