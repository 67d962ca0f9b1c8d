package http

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/couchcryptid/pothole-monitor/internal/ingest"
	"github.com/couchcryptid/pothole-monitor/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ReadinessCheckers is ready only when every checker is. The first failure
// is returned.
type ReadinessCheckers []ReadinessChecker

func (rc ReadinessCheckers) CheckReadiness(ctx context.Context) error {
	for _, c := range rc {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DetectionService is the ingest surface the API needs.
type DetectionService interface {
	SubmitJSON(ctx context.Context, body []byte) (ingest.Result, error)
	Latest(ctx context.Context) ([]domain.Detection, error)
	Calibration() domain.Calibration
}

// Options configures the server.
type Options struct {
	Addr        string
	CORSOrigins []string // "*" allows any origin
}

// Server exposes the detection API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        DetectionService
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates the gin engine and registers every route.
func NewServer(opts Options, svc DetectionService, ready ReadinessChecker, metrics *observability.Metrics, logger *slog.Logger) *Server {
	r := gin.New()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:     svc,
		metrics: metrics,
		logger:  logger,
	}

	r.Use(
		gin.CustomRecovery(func(c *gin.Context, err any) {
			logger.ErrorContext(c.Request.Context(), "panic", "err", err, "stack", string(debug.Stack()))
			c.AbortWithStatus(http.StatusInternalServerError)
		}),
		s.observe(),
		cors.New(corsConfig(opts.CORSOrigins)),
	)

	r.GET("/healthz", s.handleHealth)
	r.GET("/readyz", handleReady(ready))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", gzip.Gzip(gzip.DefaultCompression))
	api.GET("/detections", s.listDetections)
	api.POST("/detections", s.createDetections)
	api.GET("/detections/summary", s.summarize)
	api.GET("/calibration", s.calibration)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Accept", "Content-Type", "Cache-Control", "Pragma", "Origin"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// observe records request metrics and logs each request. Probe and scrape
// routes log at debug.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		switch route {
		case "/healthz", "/readyz", "/metrics":
			level = slog.LevelDebug
		}
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed,
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
