// Package httpapi exposes the workflow core over HTTP: status transitions,
// checklist answers, bulk checkpoint updates, audited asset changes, and the
// mobile bulk-sync endpoint.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/yourorg/upkeep/internal/alerts"
	"github.com/yourorg/upkeep/internal/audit"
	"github.com/yourorg/upkeep/internal/idempotency"
	"github.com/yourorg/upkeep/internal/syncsvc"
	"github.com/yourorg/upkeep/internal/workflow"
)

type Server struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Workflow    *workflow.Service
	Alerts      *alerts.Recorder
	Assets      *audit.AssetService
	Ingestor    *syncsvc.Ingestor
	Idempotency *idempotency.Store
	JWTSecret   []byte
}

// Router builds the gin engine with auth on every mutating route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.healthz)

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(s.JWTSecret))
	{
		v1.GET("/jobneeds/:id", s.getJobneed)
		v1.POST("/jobneeds/:id/transition", s.transitionJobneed)
		v1.POST("/jobneeds/:id/details", s.recordDetail)
		v1.POST("/tours/:id/checkpoints/bulk", s.bulkCheckpoints)
		v1.POST("/assets/:id/status", s.changeAssetStatus)
		v1.POST("/sync/batch", s.syncBatch)
	}
	return r
}
