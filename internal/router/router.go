package router

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/broadcast-engine/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit rate.Limit
	RateBurst int
}

type Router struct {
	engine     *gin.Engine
	auth       *middleware.AuthMiddleware
	broadcastH Handler
	healthH    Handler
	config     Config
	logger     *zerolog.Logger
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	broadcastH Handler,
	healthH Handler,
	config Config,
	logger *zerolog.Logger,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	return &Router{
		engine:     gin.New(),
		auth:       auth,
		broadcastH: broadcastH,
		healthH:    healthH,
		config:     config,
		logger:     logger,
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Setup() {
	registerValidators()

	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Logger(r.logger))
	r.engine.Use(middleware.Recovery(r.logger))

	if r.config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		r.engine.Use(limiter.RateLimit())
	}

	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.healthH.RegisterRoutes(r.engine.Group(""))

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())
	r.broadcastH.RegisterRoutes(api)
}

// registerValidators adds the jitter-fraction rule used by broadcast
// create requests.
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("jitter", func(fl validator.FieldLevel) bool {
			f := fl.Field().Float()
			return f >= 0 && f <= 1
		})
	}
}
