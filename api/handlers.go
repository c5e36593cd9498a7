package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/pkg/metrics"
)

type predictRequest struct {
	OrderID  string             `json:"order_id" binding:"required"`
	Features map[string]float64 `json:"features" binding:"required"`
}

type outcomeRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	ActualRTO *int   `json:"actual_rto" binding:"required"`
}

type reloadRequest struct {
	Version string `json:"version"`
}

type checkRetrainRequest struct {
	TriggerRetrain bool `json:"trigger_retrain"`
}

func (s *Server) health(c *gin.Context) {
	active := s.registry.ActiveArtifact()
	resp := gin.H{
		"status":       "ok",
		"model_loaded": active != nil,
	}
	if active != nil {
		resp["model_version"] = active.Version
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) predictOrder(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, cerr.Wrap(cerr.KindInvalidInput, err, "invalid request body"))
		return
	}

	start := time.Now()
	result, err := s.engine.Predict(c.Request.Context(), s.registry.ActiveArtifact(), req.Features)
	if err != nil {
		metrics.PredictionErrors.WithLabelValues(cerr.KindOf(err).String()).Inc()
		s.abortError(c, err)
		return
	}
	metrics.PredictionLatency.Observe(time.Since(start).Seconds())

	risk := "low"
	if result.RTOProbability >= result.OptimalThreshold {
		risk = "high"
	}
	metrics.PredictionsTotal.WithLabelValues(result.ModelVersion, risk).Inc()

	if s.history != nil {
		if _, err := s.history.Record(req.OrderID, result.ModelVersion,
			result.RTOProbability, result.OptimalThreshold, req.Features); err != nil {
			// Serving wins over bookkeeping: the prediction is still
			// returned when logging fails.
			s.logger.Warn("prediction log write failed",
				zap.String("order_id", req.OrderID), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":   req.OrderID,
		"prediction": result,
	})
}

func (s *Server) recordOutcome(c *gin.Context) {
	if s.history == nil {
		s.abortError(c, cerr.E(cerr.KindDegradedDependency, "prediction log not configured"))
		return
	}
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, cerr.Wrap(cerr.KindInvalidInput, err, "invalid request body"))
		return
	}
	if *req.ActualRTO != 0 && *req.ActualRTO != 1 {
		s.abortError(c, cerr.E(cerr.KindInvalidInput, "actual_rto must be 0 or 1"))
		return
	}

	updated, err := s.history.RecordOutcome(req.OrderID, *req.ActualRTO)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": req.OrderID, "updated": updated})
}

func (s *Server) modelInfo(c *gin.Context) {
	active := s.registry.ActiveArtifact()
	if active == nil {
		s.abortError(c, cerr.E(cerr.KindNotFound, "no model loaded"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version":           active.Version,
		"trained_at":        active.TrainedAt,
		"feature_names":     active.FeatureNames,
		"feature_count":     len(active.FeatureNames),
		"metrics":           active.Metrics,
		"training_samples":  active.TrainingSamples,
		"optimal_threshold": active.Threshold(),
	})
}

func (s *Server) modelVersions(c *gin.Context) {
	versions, err := s.registry.ListVersions()
	if err != nil {
		s.abortError(c, err)
		return
	}
	active := ""
	if a := s.registry.ActiveArtifact(); a != nil {
		active = a.Version
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions, "active": active})
}

func (s *Server) modelCompare(c *gin.Context) {
	versionA := c.Query("version_a")
	versionB := c.Query("version_b")
	if versionA == "" || versionB == "" {
		s.abortError(c, cerr.E(cerr.KindInvalidInput, "version_a and version_b are required"))
		return
	}
	primary := c.DefaultQuery("metric", "auc_roc")

	cmp, err := s.registry.Compare(versionA, versionB, primary)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (s *Server) modelReload(c *gin.Context) {
	var req reloadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abortError(c, cerr.Wrap(cerr.KindInvalidInput, err, "invalid request body"))
			return
		}
	}

	artifact, err := s.registry.Load(req.Version)
	if err != nil {
		s.abortError(c, err)
		return
	}
	s.registry.SetActive(artifact)
	s.engine.InvalidateExplainer(artifact.Version)

	c.JSON(http.StatusOK, gin.H{"reloaded": true, "version": artifact.Version})
}

func (s *Server) driftReport(c *gin.Context) {
	res, err := s.orchestrator.CheckRetrain(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Drift)
}

func (s *Server) checkRetrain(c *gin.Context) {
	var req checkRetrainRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abortError(c, cerr.Wrap(cerr.KindInvalidInput, err, "invalid request body"))
			return
		}
	}

	res, err := s.orchestrator.CheckRetrain(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}

	retrainStarted := false
	if req.TriggerRetrain && res.Decision.ShouldRetrain {
		trigger := string(res.Decision.Trigger)
		// Long-running; detached from the request context on purpose.
		go func() {
			if _, err := s.orchestrator.RunRetrain(context.Background(), trigger); err != nil {
				s.logger.Error("background retrain failed",
					zap.String("trigger", trigger), zap.Error(err))
			}
		}()
		retrainStarted = true
	}

	c.JSON(http.StatusOK, gin.H{
		"drift":           res.Drift,
		"decision":        res.Decision,
		"retrain_started": retrainStarted,
	})
}

func (s *Server) listSnapshots(c *gin.Context) {
	snaps, err := s.snapshots.List()
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps, "count": len(snaps)})
}
