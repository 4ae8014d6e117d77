// Package server exposes the voice client over HTTPS for browsers on the
// local network: the orb page, a small JSON control API and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voiceorb/internal/config"
	"voiceorb/internal/domain"
)

const shutdownTimeout = 5 * time.Second

// Controller is the session surface the HTTP API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Status() domain.Status
}

// Response is the envelope of every JSON API reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// StatusView combines the controller status with the latest UI events.
type StatusView struct {
	Status domain.Status `json:"status"`
	Board  BoardSnapshot `json:"board"`
}

// Server is the HTTPS bootstrap server.
type Server struct {
	echo       *echo.Echo
	cfg        config.ServerConfig
	controller Controller
	board      *StatusBoard
}

func New(cfg config.ServerConfig, controller Controller, board *StatusBoard, assets fs.FS) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	s := &Server{echo: e, cfg: cfg, controller: controller, board: board}
	s.routes(assets)
	return s
}

func (s *Server) routes(assets fs.FS) {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/session/start", s.handleStart)
	api.POST("/session/stop", s.handleStop)

	if assets != nil {
		s.echo.StaticFS("/", assets)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves TLS until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr()
	errCh := make(chan error, 1)
	go func() {
		slog.Info("https server listening", "addr", addr)
		errCh <- s.echo.StartTLS(addr, s.cfg.TLSCert, s.cfg.TLSKey)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("https server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("https server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: s.view()})
}

func (s *Server) handleStart(c echo.Context) error {
	if err := s.controller.Start(c.Request().Context()); err != nil {
		slog.Warn("start via api failed", "err", err)
		return c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Data:    s.view(),
			Message: fmt.Sprintf("start streaming: %s", err.Error()),
		})
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: s.view()})
}

func (s *Server) handleStop(c echo.Context) error {
	if err := s.controller.Stop(); err != nil {
		return c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Message: fmt.Sprintf("stop streaming: %s", err.Error()),
		})
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: s.view()})
}

func (s *Server) view() StatusView {
	return StatusView{Status: s.controller.Status(), Board: s.board.Snapshot()}
}
