// Package http provides the HTTP API for fleetrecond.
package http

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
	"github.com/fyrsmithlabs/fleetrecon/internal/scrub"
)

// Server exposes reconciliation, scrubbing, and stats endpoints.
type Server struct {
	echo     *echo.Echo
	pipeline pipeline.Service
	scrubber *scrub.Scrubber
	recorder *Recorder
	metrics  *HTTPMetrics
	logger   *logging.Logger
	config   *config.ServerConfig

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(svc pipeline.Service, scrubber *scrub.Scrubber, recorder *Recorder, logger *logging.Logger, cfg *config.ServerConfig) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("pipeline service cannot be nil")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if recorder == nil {
		recorder = NewRecorder()
	}
	if cfg == nil {
		cfg = &config.ServerConfig{
			Host:           "localhost",
			Port:           9090,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:        e,
		pipeline:    svc,
		scrubber:    scrubber,
		recorder:    recorder,
		metrics:     NewHTTPMetrics(logger),
		logger:      logger,
		config:      cfg,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(s.metrics.MetricsMiddleware())

	s.registerRoutes()

	return s, nil
}

// registerRoutes mounts the health and v1 API endpoints.
func (s *Server) registerRoutes() {
	// Health check, exempt from rate limiting so probes stay cheap.
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1", s.rateLimit)
	v1.POST("/reconcile", s.handleReconcile)
	v1.POST("/scrub", s.handleScrub)
	v1.GET("/stats", s.handleStats)
}

// requestIDPattern bounds what gets stamped into the logging context. Echo
// echoes back client-supplied X-Request-ID values, so anything outside this
// shape is logged but not used for correlation.
var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// requestLogger stamps the request ID into the context for run
// correlation and logs one line per request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)

		ctx := c.Request().Context()
		if requestIDPattern.MatchString(requestID) {
			ctx = logging.WithRequestID(ctx, requestID)
		}
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)
		duration := time.Since(start)

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", duration),
			zap.String("request_id", requestID),
		)
		return err
	}
}

// rateLimit enforces the configured per-client rate limit.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()
		if !s.limiterFor(ip).Allow() {
			s.logger.Warn(c.Request().Context(), "rate limit exceeded", zap.String("ip", ip))
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}

func (s *Server) limiterFor(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reset the map hourly so one-off clients do not accumulate forever.
	if time.Since(s.lastCleanup) > time.Hour {
		s.limiters = make(map[string]*rate.Limiter)
		s.lastCleanup = time.Now()
	}

	limiter, ok := s.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.config.RateLimitRPS), s.config.RateLimitBurst)
		s.limiters[ip] = limiter
	}
	return limiter
}

// Echo returns the underlying Echo instance so the daemon can register
// extra routes such as the Prometheus scrape endpoint.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins serving on the configured address and blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
