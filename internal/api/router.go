package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sunwatch/solarsync/internal/config"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/syncer"
)

// Reader is the read-only persistence surface the inspection endpoints
// consume.
type Reader interface {
	GetVendor(id string) (*db.Vendor, error)
	GetPlantsByOrg(orgID string) ([]*db.Plant, error)
	GetAlert(id string) (*db.Alert, error)
	GetAlertsByPlant(plantID string, limit int) ([]*db.Alert, error)
	GetAlertsByDate(from, to time.Time) ([]*db.Alert, error)
}

// Server is the operational surface of the sync daemon: health, metrics,
// last-run status, a manual pipeline trigger, and a few read-only
// inspection endpoints. The CRUD/reporting API lives in a separate
// service and is not served here.
type Server struct {
	Router *gin.Engine

	orchestrator *syncer.Orchestrator
	reader       Reader
	logger       *zap.Logger

	mu      sync.RWMutex
	lastRun map[string]*syncer.Summary
}

func NewServer(cfg *config.Config, orchestrator *syncer.Orchestrator, reader Reader, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		Router:       router,
		orchestrator: orchestrator,
		reader:       reader,
		logger:       logger,
		lastRun:      make(map[string]*syncer.Summary),
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/sync/status", s.status)
		v1.POST("/sync/:pipeline", s.trigger)

		v1.GET("/vendors/:id", s.getVendor)
		v1.GET("/orgs/:id/plants", s.getOrgPlants)
		v1.GET("/plants/:id/alerts", s.getPlantAlerts)
		v1.GET("/alerts", s.getAlertsByDate)
		v1.GET("/alerts/:id", s.getAlert)
	}

	return s
}

// Record stores a pipeline's latest summary for the status endpoint.
func (s *Server) Record(summary *syncer.Summary) {
	if summary == nil {
		return
	}
	s.mu.Lock()
	s.lastRun[summary.Pipeline] = summary
	s.mu.Unlock()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) status(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"pipelines": s.lastRun})
}

func (s *Server) trigger(c *gin.Context) {
	var run func(context.Context) (*syncer.Summary, error)

	switch c.Param("pipeline") {
	case "plants":
		run = s.orchestrator.SyncPlants
	case "telemetry":
		run = s.orchestrator.SyncTelemetry
	case "alerts":
		run = s.orchestrator.SyncAlerts
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pipeline"})
		return
	}

	summary, err := run(c.Request.Context())
	s.Record(summary)

	if err != nil {
		s.logger.Warn("Manual sync finished with failures", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"summary": summary, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (s *Server) getVendor(c *gin.Context) {
	v, err := s.reader.GetVendor(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vendor": v})
}

func (s *Server) getOrgPlants(c *gin.Context) {
	plants, err := s.reader.GetPlantsByOrg(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plants": plants, "count": len(plants)})
}

func (s *Server) getPlantAlerts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}

	alerts, err := s.reader.GetAlertsByPlant(c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) getAlert(c *gin.Context) {
	a, err := s.reader.GetAlert(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": a})
}

// getAlertsByDate lists alerts in a [from, to) range, defaulting to the
// last 24 hours.
func (s *Server) getAlertsByDate(c *gin.Context) {
	to := time.Now()
	from := to.Add(-24 * time.Hour)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		to = parsed
	}

	alerts, err := s.reader.GetAlertsByDate(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}
