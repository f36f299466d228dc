package server

import (
	"github.com/abduss/labportal/internal/access"
	"github.com/abduss/labportal/internal/config"
	"github.com/abduss/labportal/internal/logger"
	"github.com/abduss/labportal/internal/metrics"
	"github.com/abduss/labportal/internal/session"
	"github.com/abduss/labportal/internal/tokenstore"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config  config.Config
	Logger  *zap.Logger
	Tokens  *tokenstore.Store
	Session *session.Controller
	Gate    access.Gate
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	if deps.Session != nil {
		portal := newPortal(deps)
		registerSessionRoutes(router.Group("/v1"), deps, portal)
		portal.register(router)
	}

	return router
}
