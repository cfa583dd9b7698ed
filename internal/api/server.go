package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vision-stage-tracker/internal/domain"
	"github.com/vision-stage-tracker/internal/middleware"
	"github.com/vision-stage-tracker/internal/report"
	"github.com/vision-stage-tracker/internal/service"
	"github.com/vision-stage-tracker/internal/storage"
)

// shutdownTimeout bounds graceful shutdown after the serve context ends
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	store         storage.Store
	tracker       *service.TrackerService
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, store storage.Store, logger *logrus.Logger) (*Server, error) {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())

	if cfg.RateLimit.Enabled {
		limiter, err := middleware.NewRateLimiter(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		router.Use(limiter.Middleware())
	}

	server := &Server{
		configManager: configManager,
		store:         store,
		tracker:       service.NewTrackerService(store, logger),
		logger:        logger,
		router:        router,
	}

	// Setup routes
	server.setupRoutes()

	return server, nil
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/stages", s.handleListStages)
		v1.POST("/stages", s.handleCreateStage)
		v1.PATCH("/stages/:id", s.handleUpdateStage)
		v1.POST("/stages/import", s.handleImportStages)

		v1.GET("/resolve", s.handleResolve)

		v1.GET("/records", s.handleListRecords)
		v1.POST("/records", s.handleAddRecord)
		v1.GET("/records/latest", s.handleLatestRecord)
		v1.DELETE("/records/:id", s.handleDeleteRecord)

		v1.GET("/summary", s.handleSummary)
		v1.GET("/trends", s.handleTrends)

		v1.GET("/export/json", s.handleExportJSON)
		v1.POST("/import/json", s.handleImportJSON)
		v1.GET("/export/xlsx", s.handleExportXLSX)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   s.configManager.GetConfig().MCP.ServerVersion,
	})
}

func (s *Server) handleListStages(c *gin.Context) {
	stages, err := s.tracker.Stages().ListStages(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stages": stages})
}

func (s *Server) handleCreateStage(c *gin.Context) {
	var draft service.StageDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	in, err := draft.Input()
	if err != nil {
		s.respondError(c, err)
		return
	}

	stage, err := s.tracker.Stages().CreateStage(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stage)
}

// stagePatch is the body of PATCH /stages/:id. At least one field must be set.
type stagePatch struct {
	Enabled      *bool   `json:"enabled"`
	EndDate      *string `json:"end_date"`
	ClearEndDate bool    `json:"clear_end_date"`
}

func (s *Server) handleUpdateStage(c *gin.Context) {
	var patch stagePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	if patch.Enabled == nil && patch.EndDate == nil && !patch.ClearEndDate {
		s.respondBadRequest(c, errors.New("one of enabled, end_date or clear_end_date is required"))
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	registry := s.tracker.Stages()

	var stage *domain.Stage
	var err error

	if patch.ClearEndDate {
		stage, err = registry.SetEndDate(ctx, id, nil)
	} else if patch.EndDate != nil {
		end, parseErr := domain.ParseDate(*patch.EndDate)
		if parseErr != nil {
			s.respondError(c, domain.NewValidationError("end_date", parseErr.Error(), *patch.EndDate))
			return
		}
		stage, err = registry.SetEndDate(ctx, id, &end)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	if patch.Enabled != nil {
		stage, err = registry.SetEnabled(ctx, id, *patch.Enabled)
		if err != nil {
			s.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, stage)
}

func (s *Server) handleImportStages(c *gin.Context) {
	created, err := s.tracker.Stages().ImportYAML(c.Request.Context(), c.Request.Body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"count":  len(created),
		"stages": created,
	})
}

func (s *Server) handleResolve(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		s.respondError(c, domain.NewValidationError("date", "date query parameter is required", raw))
		return
	}
	date, err := domain.ParseDate(raw)
	if err != nil {
		s.respondError(c, domain.NewValidationError("date", err.Error(), raw))
		return
	}

	ref, err := s.tracker.ResolveDate(c.Request.Context(), date)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":  domain.FormatDate(date),
		"stage": ref,
	})
}

func (s *Server) handleListRecords(c *gin.Context) {
	snap, err := s.tracker.Refresh(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records":      snap.Records,
		"count":        len(snap.Records),
		"refreshed_at": snap.RefreshedAt,
	})
}

func (s *Server) handleAddRecord(c *gin.Context) {
	var in service.RecordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	rec, err := s.tracker.AddRecord(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleLatestRecord(c *gin.Context) {
	rec, err := s.tracker.Latest(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if rec == nil {
		s.respondError(c, fmt.Errorf("no examination records: %w", domain.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(c *gin.Context) {
	if err := s.tracker.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSummary(c *gin.Context) {
	summary, err := s.tracker.Summary(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (s *Server) handleTrends(c *gin.Context) {
	q := service.TrendQuery{Stages: c.QueryArray("stage")}
	if raw := c.Query("last"); raw != "" {
		last, err := strconv.Atoi(raw)
		if err != nil || last < 0 {
			s.respondError(c, domain.NewValidationError("last", "must be a non-negative integer", raw))
			return
		}
		q.Last = last
	}

	points, err := s.tracker.Trends(c.Request.Context(), q)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

func (s *Server) handleExportJSON(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.store.ExportJSON(c.Request.Context(), &buf); err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", attachment("json"))
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

func (s *Server) handleImportJSON(c *gin.Context) {
	ctx := c.Request.Context()
	imported, skipped, err := s.store.ImportJSON(ctx, c.Request.Body)
	if err != nil {
		s.respondBadRequest(c, err)
		return
	}

	// imported records carry the exporter's stage assignment until re-resolved
	if _, err := s.tracker.Refresh(ctx); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"skipped":  skipped,
	})
}

func (s *Server) handleExportXLSX(c *gin.Context) {
	snap, err := s.tracker.Refresh(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, snap); err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", attachment("xlsx"))
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}

func attachment(ext string) string {
	return fmt.Sprintf(`attachment; filename="vision-tracker-%s.%s"`, time.Now().UTC().Format("20060102"), ext)
}

// respondError maps err onto a status code and an APIError body
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrValidation, "Validation failed", err.Error(), requestID))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrNotFoundCode, "Resource not found", err.Error(), requestID))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(domain.ErrInternalServer, "Internal server error", "", requestID))
	}
}

func (s *Server) respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, domain.NewAPIError(
		domain.ErrInvalidInput,
		"Invalid request",
		err.Error(),
		c.GetString(middleware.CorrelationIDKey),
	))
}
