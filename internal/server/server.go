package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teem-market/teem/internal/engine"
	"github.com/teem-market/teem/internal/gateway"
	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/pkg/logger"
)

// Config holds status server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// Server exposes the orchestrator over a small read-mostly HTTP API:
// submission status, endpoint health, Prometheus metrics, and an async
// submission entry point.
type Server struct {
	cfg          Config
	orchestrator *engine.Orchestrator
	probe        *gateway.Probe
	log          *logger.Logger
	router       *gin.Engine
}

// submitRequest is the async submission body.
type submitRequest struct {
	Target       string   `json:"target" binding:"required"`
	PlainValue   *float64 `json:"plain_value,omitempty"`
	ProtectedRef string   `json:"protected_ref,omitempty"`
}

// New creates the status server.
func New(cfg Config, orch *engine.Orchestrator, probe *gateway.Probe, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		probe:        probe,
		log:          log,
		router:       router,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/submissions", s.handleListSubmissions)
		v1.GET("/submissions/:id", s.handleGetSubmission)
		v1.POST("/submissions", s.handleSubmit)
	}
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := s.probe.Check(c.Request.Context())

	healthy := true
	for _, check := range checks {
		if !check.Healthy {
			healthy = false
		}
	}

	code := http.StatusOK
	status := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleListSubmissions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"submissions": s.orchestrator.Tracker().List(),
	})
}

func (s *Server) handleGetSubmission(c *gin.Context) {
	id := c.Param("id")
	status, ok := s.orchestrator.Tracker().Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := market.InputSpec{
		PlainValue:   req.PlainValue,
		ProtectedRef: req.ProtectedRef,
	}
	if err := input.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Submissions run detached from the request; clients follow progress
	// through the submissions endpoints.
	id := engine.NewSubmissionID()
	go func() {
		if _, err := s.orchestrator.RunWithID(context.Background(), id, req.Target, input); err != nil {
			s.log.Warn("async submission failed", "submission", id, "error", err.Error())
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"submission_id": id,
		"target":        req.Target,
	})
}
