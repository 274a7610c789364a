// Package api serves a read-only HTTP view of the ledger.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/types"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type APIConfig struct {
	APIEndpoint string
	CounterID   types.Address
	TrackerID   types.Address
}

type Server struct {
	rt     *ledger.Runtime
	cfg    APIConfig
	logger logrus.FieldLogger
}

func NewServer(rt *ledger.Runtime, cfg APIConfig, logger logrus.FieldLogger) *Server {
	return &Server{
		rt:     rt,
		cfg:    cfg,
		logger: logger,
	}
}

// Handler returns the router without binding a listener.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	s.registerRoutes(r)
	return r
}

// Serve listens on cfg.APIEndpoint until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.APIEndpoint,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("listen", s.cfg.APIEndpoint).Info("api server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		s.logger.Info("api server stopped")
		return nil
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		}).Debug("api request")
	}
}
