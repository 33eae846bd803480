package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
)

type Server struct {
	Engine *gin.Engine
	log    *logger.Logger
	srv    *http.Server
	grace  time.Duration
}

func NewServer(log *logger.Logger, hc config.HTTPConfig, rc RouterConfig) *Server {
	engine := NewRouter(rc)
	grace := hc.ShutdownTimeout.Duration
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Server{
		Engine: engine,
		log:    log.With("component", "HTTPServer"),
		grace:  grace,
		srv: &http.Server{
			Addr:              hc.Addr,
			Handler:           engine,
			ReadHeaderTimeout: hc.ReadHeaderTimeout.Duration,
			IdleTimeout:       hc.IdleTimeout.Duration,
		},
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	s.log.Info("http server shutting down", "grace", s.grace.String())
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
