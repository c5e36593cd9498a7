// Package api exposes the model lifecycle over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/dataset"
	"github.com/codguard/codguard/internal/history"
	"github.com/codguard/codguard/internal/lifecycle"
	"github.com/codguard/codguard/internal/predict"
	"github.com/codguard/codguard/internal/registry"
)

// Server is the HTTP serving surface.
type Server struct {
	router       *gin.Engine
	logger       *zap.Logger
	engine       *predict.Engine
	registry     *registry.Store
	orchestrator *lifecycle.Orchestrator
	snapshots    *dataset.Snapshots
	history      *history.Store
}

// NewServer wires the HTTP layer. history may be nil; prediction
// logging and outcome ingestion are then disabled.
func NewServer(
	logger *zap.Logger,
	engine *predict.Engine,
	reg *registry.Store,
	orchestrator *lifecycle.Orchestrator,
	snapshots *dataset.Snapshots,
	hist *history.Store,
	allowedOrigins []string,
) *Server {
	server := &Server{
		logger:       logger,
		engine:       engine,
		registry:     reg,
		orchestrator: orchestrator,
		snapshots:    snapshots,
		history:      hist,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	server.router = router
	server.registerRoutes()
	return server
}

// Router returns the internal Gin engine for testing purposes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handler returns the server as an http.Handler for embedding in an
// http.Server with timeouts and graceful shutdown.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.health)

	s.router.POST("/predict", s.predictOrder)
	s.router.POST("/outcomes", s.recordOutcome)

	model := s.router.Group("/model")
	{
		model.GET("/info", s.modelInfo)
		model.GET("/versions", s.modelVersions)
		model.GET("/compare", s.modelCompare)
		model.POST("/reload", s.modelReload)
	}

	pipeline := s.router.Group("/pipeline")
	{
		pipeline.GET("/drift-report", s.driftReport)
		pipeline.POST("/check-retrain", s.checkRetrain)
		pipeline.GET("/snapshots", s.listSnapshots)
	}
}

// abortError maps the error taxonomy onto HTTP status codes.
func (s *Server) abortError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch cerr.KindOf(err) {
	case cerr.KindInvalidInput:
		status = http.StatusBadRequest
	case cerr.KindNotFound:
		status = http.StatusNotFound
	case cerr.KindConflict:
		status = http.StatusConflict
	case cerr.KindTransientInfra, cerr.KindDegradedDependency:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": err.Error(),
		"kind":  cerr.KindOf(err).String(),
	})
}
