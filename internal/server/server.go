package server

import (
	"context"
	"net/http"
	"time"

	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/SamMebarek/mlopstest/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// Predictor is the inference surface exposed over HTTP
type Predictor interface {
	Predict(ctx context.Context, sku string) (api.PredictionResult, error)
	ReloadModel(ctx context.Context) error
	Health(ctx context.Context) (api.HealthResponse, error)
	ModelVersion() string
}

// Config controls routing, auth and rate limiting
type Config struct {
	ServiceName   string
	AdminUser     string
	AdminPassword string
	// RequestsPerSecond of 0 disables rate limiting
	RequestsPerSecond float64
	Burst             int
	Gatherer          prometheus.Gatherer
}

type handler struct {
	svc     Predictor
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRouter wires the HTTP routes:
//
//	POST /predict        single-SKU prediction
//	POST /reload-model   admin only (basic auth)
//	GET  /health         model and data readiness
//	GET  /metrics        Prometheus exposition
func NewRouter(svc Predictor, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *gin.Engine {
	h := &handler{svc: svc, metrics: m, logger: logger.With().Str("component", "http").Logger()}

	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}

	limited := r.Group("/")
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RequestsPerSecond) * 2
		}
		if burst < 1 {
			burst = 1
		}
		limited.Use(h.rateLimit(rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)))
	}
	limited.POST("/predict", h.predict)
	limited.POST("/reload-model", gin.BasicAuth(gin.Accounts{cfg.AdminUser: cfg.AdminPassword}), h.reload)

	r.GET("/health", h.health)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func (h *handler) predict(c *gin.Context) {
	var req api.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request", Detail: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request", Detail: err.Error()})
		return
	}

	res, err := h.svc.Predict(c.Request.Context(), req.SKU)
	if err != nil {
		status := api.StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("sku", req.SKU).Msg("prediction failed")
		}
		c.JSON(status, api.ErrorResponse{Error: api.Outcome(err), Detail: err.Error()})
		return
	}

	c.JSON(http.StatusOK, res.ToResponse())
}

func (h *handler) reload(c *gin.Context) {
	if err := h.svc.ReloadModel(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: api.Outcome(err), Detail: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "model_version": h.svc.ModelVersion()})
}

func (h *handler) health(c *gin.Context) {
	resp, err := h.svc.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			if h.metrics != nil {
				h.metrics.RateLimited.Inc()
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, api.ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (h *handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
