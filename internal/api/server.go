package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/middleware"
	"github.com/medirisk-server/internal/service"
)

// Version is reported by the health endpoint
var Version = "1.0.0"

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	service       *service.RiskService
	gatherer      prometheus.Gatherer
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, svc *service.RiskService, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.RequestDeadline(cfg.Server.RequestTimeout))

	server := &Server{
		configManager: configManager,
		service:       svc,
		gatherer:      gatherer,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the HTTP handler, for tests and embedding
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

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/domains", s.handleListDomains)

		d := v1.Group("/domains/:domain")
		d.GET("/schema", s.handleGetSchema)
		d.POST("/validate", s.handleValidate)
		d.POST("/predict", s.handlePredict)
		d.POST("/predict/batch", s.handlePredictBatch)
		d.POST("/assess", s.handleAssess)
		d.POST("/enhance", s.handleEnhance)

		if s.configManager.GetServerConfig().EnableAdmin {
			v1.POST("/admin/models/:domain/reload", s.handleReload)
		}
	}

	s.router.NoRoute(func(c *gin.Context) {
		s.abort(c, http.StatusNotFound, domain.ErrNotFound, "route not found", nil)
	})
}

// handleHealth reports liveness and per-domain model availability
func (s *Server) handleHealth(c *gin.Context) {
	statuses := s.service.DomainStatuses()

	available := 0
	domains := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		domains[st.Domain] = st.Available
		if st.Available {
			available++
		}
	}

	status, code := "healthy", http.StatusOK
	switch {
	case available == 0:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case available < len(statuses):
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"domains":   domains,
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Correlation-ID, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
