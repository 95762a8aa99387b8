package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hirelens/hirelens/internal/clock"
	"github.com/hirelens/hirelens/internal/config"
	entitlementdomain "github.com/hirelens/hirelens/internal/entitlement/domain"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
	"github.com/hirelens/hirelens/internal/observability"
	obsmiddleware "github.com/hirelens/hirelens/internal/observability/logger"
	obsmetrics "github.com/hirelens/hirelens/internal/observability/metrics"
	obstracing "github.com/hirelens/hirelens/internal/observability/tracing"
	orgdomain "github.com/hirelens/hirelens/internal/organization/domain"
	gatedomain "github.com/hirelens/hirelens/internal/quotagate/domain"
	"github.com/hirelens/hirelens/internal/ratelimit"
	usagedomain "github.com/hirelens/hirelens/internal/usage/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	clock           clock.Clock
	organizationSvc orgdomain.Service
	lifecycleSvc    lifecycledomain.Service
	entitlementSvc  entitlementdomain.Service
	usageSvc        usagedomain.Service
	gateSvc         gatedomain.Service
	gateLimiter     *ratelimit.GateLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	Clock           clock.Clock
	OrganizationSvc orgdomain.Service
	LifecycleSvc    lifecycledomain.Service
	EntitlementSvc  entitlementdomain.Service
	UsageSvc        usagedomain.Service
	GateSvc         gatedomain.Service
	GateLimiter     *ratelimit.GateLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		clock:           p.Clock,
		organizationSvc: p.OrganizationSvc,
		lifecycleSvc:    p.LifecycleSvc,
		entitlementSvc:  p.EntitlementSvc,
		usageSvc:        p.UsageSvc,
		gateSvc:         p.GateSvc,
		gateLimiter:     p.GateLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Organizations --------
	api.POST("/organizations", s.CreateOrganization)
	api.GET("/organizations", s.ListOrganizations)
	api.GET("/organizations/:id", s.GetOrganization)
	api.POST("/organizations/:id/lifecycle/trial", s.StartTrial)
	api.POST("/organizations/:id/lifecycle/pilot", s.StartPilot)

	// -------- Billing webhook --------
	api.POST("/billing/webhooks/conversion", s.HandleBillingConversion)

	// -------- Operational --------
	api.POST("/admin/usage/purge", s.PurgeUsage)

	// -------- Tenant-scoped surface --------
	org := api.Group("", s.OrgContext())
	{
		org.GET("/lifecycle", s.GetLifecycle)
		org.GET("/lifecycle/history", s.GetLifecycleHistory)
		org.GET("/entitlements", s.ListEntitlements)
		org.GET("/usage", s.ListUsage)
		org.POST("/gate/check", s.GateRateLimit(), s.GateCheck)
	}
}
