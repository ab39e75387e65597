// Package server exposes the insight pipeline over HTTP with gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/KaramelBytes/govai/internal/pipeline"
)

// SessionHeader carries the session id between requests.
const SessionHeader = "X-Session-ID"

// DefaultMaxSessions bounds the sessions kept in memory; the least
// recently used one is dropped first.
const DefaultMaxSessions = 128

// DefaultMaxUploadBytes limits one multipart request.
const DefaultMaxUploadBytes = 32 << 20

// SessionFactory creates a fresh pipeline session.
type SessionFactory func() (*pipeline.Session, error)

type Options struct {
	MaxSessions    int
	MaxUploadBytes int64
}

// Server routes requests to per-session pipelines.
type Server struct {
	engine     *gin.Engine
	newSession SessionFactory
	sessions   *lru.Cache[string, *pipeline.Session]
	logger     *zap.Logger
	opt        Options
}

// New builds the router. The factory is called once per new session.
func New(factory SessionFactory, opt Options, logger *zap.Logger) (*Server, error) {
	if factory == nil {
		return nil, errors.New("server: session factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opt.MaxSessions <= 0 {
		opt.MaxSessions = DefaultMaxSessions
	}
	if opt.MaxUploadBytes <= 0 {
		opt.MaxUploadBytes = DefaultMaxUploadBytes
	}
	sessions, err := lru.New[string, *pipeline.Session](opt.MaxSessions)
	if err != nil {
		return nil, err
	}
	s := &Server{
		newSession: factory,
		sessions:   sessions,
		logger:     logger.Named("server"),
		opt:        opt,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.MaxMultipartMemory = opt.MaxUploadBytes
	r.GET("/healthz", s.healthz)
	v1 := r.Group("/v1")
	{
		v1.POST("/insights", s.insights)
		v1.POST("/profile", s.profile)
		v1.POST("/normalize", s.normalize)
	}
	s.engine = r
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// session returns the session named by the request header, creating a
// new one when the header is absent or unknown. The id is echoed back.
func (s *Server) session(c *gin.Context) (*pipeline.Session, error) {
	if id := c.GetHeader(SessionHeader); id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			c.Header(SessionHeader, sess.ID)
			return sess, nil
		}
	}
	sess, err := s.newSession()
	if err != nil {
		return nil, err
	}
	s.sessions.Add(sess.ID, sess)
	s.logger.Debug("session created", zap.String("session", sess.ID))
	c.Header(SessionHeader, sess.ID)
	return sess, nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("session", c.Writer.Header().Get(SessionHeader)))
	}
}
