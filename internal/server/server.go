// Package server exposes the resolution engine over HTTP in the shape the
// AnswererWrapper userscript expects.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/answerbot/internal/engine"
)

// Heartbeat is the body served on GET /.
const Heartbeat = "服务已启动"

// Resolver is the part of the engine the server needs.
type Resolver interface {
	Resolve(ctx context.Context, req engine.Request) (*engine.Outcome, error)
}

// Options controls request handling.
type Options struct {
	// SkipCache forces every request past the answer cache.
	SkipCache bool

	// RequestTimeout bounds one resolution. Zero means no limit beyond the
	// client connection.
	RequestTimeout time.Duration
}

// Server wires the HTTP routes to a Resolver.
type Server struct {
	router   *gin.Engine
	resolver Resolver
	opts     Options
	log      *zap.Logger
}

// New builds the router. Gin's global mode should be set by the caller.
func New(resolver Resolver, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(log))
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(string) bool { return true },
		AllowMethods:    []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", requestIDHeader},
		ExposeHeaders:   []string{requestIDHeader},
	}))

	s := &Server{router: router, resolver: resolver, opts: opts, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.heartbeat)
	s.router.HEAD("/", s.heartbeat)
	s.router.GET("/search", s.search)
	s.router.POST("/search", s.search)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server exited")
	return nil
}

func (s *Server) heartbeat(c *gin.Context) {
	c.String(http.StatusOK, Heartbeat)
}
