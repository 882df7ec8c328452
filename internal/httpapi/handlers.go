package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yourorg/upkeep/internal/domain"
	"github.com/yourorg/upkeep/internal/idempotency"
	"github.com/yourorg/upkeep/internal/locks"
	"github.com/yourorg/upkeep/internal/syncsvc"
	"github.com/yourorg/upkeep/internal/workflow"
)

type transitionRequest struct {
	Status domain.JobneedStatus `json:"status" binding:"required"`
}

// transitionJobneed handles POST /api/v1/jobneeds/:id/transition.
func (s *Server) transitionJobneed(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid jobneed id"})
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = s.Workflow.TransitionJobneedStatus(c.Request.Context(), id, req.Status, currentUser(c), true)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

// getJobneed handles GET /api/v1/jobneeds/:id.
func (s *Server) getJobneed(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid jobneed id"})
		return
	}

	jn, err := s.Workflow.GetJobneed(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, jn)
}

type detailRequest struct {
	Question string            `json:"question" binding:"required"`
	Answer   string            `json:"answer"`
	Type     domain.AnswerType `json:"type" binding:"required"`
	Min      *float64          `json:"min"`
	Max      *float64          `json:"max"`
	AlertOn  string            `json:"alert_on"`
}

// recordDetail handles POST /api/v1/jobneeds/:id/details.
func (s *Server) recordDetail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid jobneed id"})
		return
	}

	var req detailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detail := &domain.JobneedDetail{
		JobneedID: id,
		Question:  req.Question,
		Answer:    req.Answer,
		Type:      req.Type,
		Min:       req.Min,
		Max:       req.Max,
		AlertOn:   req.AlertOn,
	}
	if err := s.Alerts.RecordDetail(c.Request.Context(), detail); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": detail.ID, "alerts": detail.Alerts})
}

type bulkCheckpointRequest struct {
	Updates []struct {
		ChildID uuid.UUID             `json:"child_id" binding:"required"`
		Status  *domain.JobneedStatus `json:"status"`
		GPSLat  *float64              `json:"gps_lat"`
		GPSLng  *float64              `json:"gps_lng"`
		Alerts  *bool                 `json:"alerts"`
	} `json:"updates" binding:"required"`
}

// bulkCheckpoints handles POST /api/v1/tours/:id/checkpoints/bulk.
func (s *Server) bulkCheckpoints(c *gin.Context) {
	parentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tour id"})
		return
	}

	var req bulkCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make([]workflow.ChildUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, workflow.ChildUpdate{
			ChildID: u.ChildID,
			Update: workflow.CheckpointUpdate{
				Status: u.Status,
				GPSLat: u.GPSLat,
				GPSLng: u.GPSLng,
				Alerts: u.Alerts,
			},
		})
	}

	if err := s.Workflow.BulkUpdateChildCheckpoints(c.Request.Context(), parentID, updates, currentUser(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parent_id": parentID, "updated": len(updates)})
}

type assetStatusRequest struct {
	Status domain.RunningStatus `json:"status" binding:"required"`
}

// changeAssetStatus handles POST /api/v1/assets/:id/status.
func (s *Server) changeAssetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	var req assetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := s.Assets.ChangeStatus(c.Request.Context(), id, req.Status, currentUser(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if entry == nil {
		c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status, "changed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         id,
		"status":     req.Status,
		"changed":    true,
		"log_id":     entry.ID,
		"old_status": entry.OldStatus,
		"changed_at": entry.ChangedAt,
	})
}

// syncBatch handles POST /api/v1/sync/batch. The Idempotency-Key header is
// required; a replay within the TTL returns the cached response verbatim
// with X-Idempotent-Replay set.
func (s *Server) syncBatch(c *gin.Context) {
	headerKey := c.GetHeader("Idempotency-Key")
	if headerKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header required"})
		return
	}

	var batch syncsvc.BatchRequest
	raw, err := c.GetRawData()
	if err != nil || json.Unmarshal(raw, &batch) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch payload"})
		return
	}

	userID := currentUser(c)
	tenantID := currentTenant(c)

	key, err := idempotency.GenerateKey("sync_batch",
		map[string]any{"payload_hash": idempotency.HashPayload(raw)},
		map[string]any{
			"idempotency_key": headerKey,
			"tenant_id":       tenantID.String(),
			"user_id":         userID.String(),
		})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "key generation failed"})
		return
	}

	if cached := s.Idempotency.CheckDuplicate(c.Request.Context(), key); cached != nil {
		c.Header("X-Idempotent-Replay", "true")
		c.Data(http.StatusOK, "application/json", cached)
		return
	}

	resp, err := s.Ingestor.Ingest(c.Request.Context(), tenantID, userID, batch)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	encoded, err := json.Marshal(resp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "response encoding failed"})
		return
	}

	s.Idempotency.StoreResponse(c.Request.Context(), key,
		idempotency.HashPayload(raw), encoded, &userID,
		c.GetHeader("X-Device-ID"), c.FullPath(), "mobile_sync")

	c.Data(http.StatusOK, "application/json", encoded)
}

// healthz pings both stores.
func (s *Server) healthz(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.Pool.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
		return
	}
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeServiceError maps the workflow error taxonomy onto HTTP statuses.
// Lock timeouts are retryable (429); invalid transitions are client errors
// the UI can special-case (409); missing entities are 404.
func writeServiceError(c *gin.Context, err error) {
	var transitionErr *workflow.InvalidTransitionError
	var integrityErr *workflow.IntegrityError
	switch {
	case errors.Is(err, locks.ErrNotAcquired):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "resource busy, retry later"})
	case errors.Is(err, workflow.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"error": "invalid_transition",
			"from":  transitionErr.From,
			"to":    transitionErr.To,
		})
	case errors.As(err, &integrityErr):
		c.JSON(http.StatusConflict, gin.H{"error": "integrity violation"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
