// Package api exposes the HTTP surface: checkin and profile verification,
// meal detection, health and metrics.
package api

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gymcheck/gymcheck-go/internal/classifier"
	"github.com/gymcheck/gymcheck-go/internal/conf"
	"github.com/gymcheck/gymcheck-go/internal/datastore"
	"github.com/gymcheck/gymcheck-go/internal/imagecheck"
	"github.com/gymcheck/gymcheck-go/internal/logging"
	"github.com/gymcheck/gymcheck-go/internal/mealscan"
	"github.com/gymcheck/gymcheck-go/internal/observability"
)

// Pipeline is the slice of the classifier cascade the handlers need.
type Pipeline interface {
	Classify(ctx context.Context, img *imagecheck.Checked) (classifier.Result, []string)
}

// MealDetector is the slice of the meal scanner the handlers need.
type MealDetector interface {
	Enabled() bool
	Detect(ctx context.Context, img *imagecheck.Checked) (mealscan.Scan, error)
}

// TierStatus reports which classifier tiers are currently usable.
type TierStatus struct {
	Scene  bool `json:"scene"`
	Legacy bool `json:"legacy"`
	Remote bool `json:"remote"`
}

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings
	DS       datastore.Interface

	// CheckinPipeline runs all three tiers; ProfilePipeline stops at the
	// local ones.
	CheckinPipeline Pipeline
	ProfilePipeline Pipeline
	Meals           MealDetector
	Tiers           func() TierStatus

	metrics   *observability.Metrics
	limits    *cache.Cache // per-user daily checkin counters
	logger    *log.Logger
	apiLogger *slog.Logger
	startTime time.Time
}

// New creates the controller and registers all routes.
func New(settings *conf.Settings, ds datastore.Interface, checkin, profile Pipeline,
	meals MealDetector, tiers func() TierStatus, metrics *observability.Metrics,
	registry *prometheus.Registry) *Controller {

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = settings.Server.ReadTimeout
	e.Server.WriteTimeout = settings.Server.WriteTimeout
	e.Use(middleware.Recover())

	c := &Controller{
		Echo:            e,
		Settings:        settings,
		DS:              ds,
		CheckinPipeline: checkin,
		ProfilePipeline: profile,
		Meals:           meals,
		Tiers:           tiers,
		metrics:         metrics,
		limits:          cache.New(48*time.Hour, time.Hour),
		logger:          log.Default(),
		apiLogger:       logging.ForService("api"),
		startTime:       time.Now(),
	}

	c.Group = e.Group("/api/v1")
	c.initRoutes(registry)
	return c
}

func (c *Controller) initRoutes(registry *prometheus.Registry) {
	c.Group.POST("/checkin/verify", c.HandleCheckinVerify)
	c.Group.GET("/checkin/history", c.HandleCheckinHistory)
	c.Group.GET("/checkin/history/:id", c.HandleCheckinHistoryDetail)
	c.Group.POST("/profile/verify", c.HandleProfileVerify)
	c.Group.POST("/meals/detect", c.HandleMealDetect)
	c.Group.GET("/health", c.HandleHealth)

	if registry != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
}

// Start runs the server on the configured port. Blocks until shutdown.
func (c *Controller) Start() error {
	return c.Echo.Start(":" + c.Settings.Server.Port)
}

// Shutdown stops the server gracefully.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Echo.Shutdown(ctx)
}

// ErrorResponse is the standard JSON error payload.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs an error and writes the standard error payload.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	c.apiLogger.Error("API error",
		"correlation_id", errorResp.CorrelationID,
		"message", message,
		"error", errorResp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(code, errorResp)
}

// HandleHealth reports process liveness and per-tier availability.
func (c *Controller) HandleHealth(ctx echo.Context) error {
	status := TierStatus{}
	if c.Tiers != nil {
		status = c.Tiers()
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(c.startTime).Seconds()),
		"tiers":          status,
	})
}
