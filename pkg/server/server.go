// Package server exposes a Persistence as the HTTP storage engine the ledger
// coordinators talk to.
//
//	GET  /api/v1/:workflow/records?date=YYYY-MM-DD&key=UNIT
//	POST /api/v1/:workflow/records
//	GET  /healthz
//	GET  /metrics
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/logging"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

// Server routes storage-engine requests to per-workflow services sharing one
// Persistence.
type Server struct {
	persistence store.Persistence
	logger      *zap.Logger
	registry    *prometheus.Registry
	metrics     *metrics
	router      *gin.Engine
}

// New builds the router. Each server owns its metrics registry.
func New(p store.Persistence, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	reg := prometheus.NewRegistry()
	s := &Server{
		persistence: p,
		logger:      logger,
		registry:    reg,
		metrics:     newMetrics(reg),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())
	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1/:workflow")
	v1.Use(s.resolveWorkflow())
	v1.GET("/records", s.getRecord)
	v1.POST("/records", s.postRecord)

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("storage engine listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

const serviceKey = "sandlab.service"

// resolveWorkflow aborts with 404 for unknown workflows and stores the
// workflow's service on the context otherwise.
func (s *Server) resolveWorkflow() gin.HandlerFunc {
	return func(c *gin.Context) {
		wf, err := workflow.Lookup(c.Param("workflow"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, Response{Message: err.Error()})
			return
		}
		c.Set(serviceKey, &app.Service{Persistence: s.persistence, Workflow: wf, Logger: s.logger})
		c.Next()
	}
}

func service(c *gin.Context) *app.Service {
	return c.MustGet(serviceKey).(*app.Service)
}
