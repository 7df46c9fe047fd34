// Package web serves the single-page chat view of the tutor and the JSON API behind it.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/internal/session"
)

//go:embed static/index.html
var staticFiles embed.FS

const shutdownTimeout = 10 * time.Second

// Session is the part of a tutoring session the web view drives
type Session interface {
	Submit(ctx context.Context, question string) (string, error)
	SetAPIKey(ctx context.Context, key string) error
	ClearHistory()
	Messages() []ai.Message
	Configured() bool
	State() session.State
	MaxHistory() int
}

// Options configures the web view
type Options struct {
	Title  string
	Topic  string
	Logger zerolog.Logger
}

// Server serves one session over HTTP. Submissions from concurrent requests are queued by the session
type Server struct {
	echo    *echo.Echo
	session Session
	opts    Options
	logger  zerolog.Logger
	index   []byte
}

// New creates a server for sess and registers its routes
func New(sess Session, opts Options) (*Server, error) {
	index, err := renderIndex(opts.Title)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		session: sess,
		opts:    opts,
		logger:  opts.Logger,
		index:   index,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Handled request")
			return nil
		},
	}))

	e.GET("/", s.handleIndex)
	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api")
	api.GET("/conversation", s.handleGetConversation)
	api.DELETE("/conversation", s.handleClearConversation)
	api.POST("/conversation/messages", s.handlePostMessage)
	api.PUT("/key", s.handlePutKey)

	return s, nil
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run listens on addr until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Web chat listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("web server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down web chat")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	return nil
}

func renderIndex(title string) ([]byte, error) {
	tmpl, err := template.ParseFS(staticFiles, "static/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Title string }{Title: title}); err != nil {
		return nil, fmt.Errorf("failed to render index page: %w", err)
	}
	return buf.Bytes(), nil
}
