// Package server exposes the engine to the host application over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	attributesdomain "github.com/smallbiznis/storebridge/internal/attributes/domain"
	"github.com/smallbiznis/storebridge/internal/config"
	"github.com/smallbiznis/storebridge/internal/customerinfo"
	orchestratordomain "github.com/smallbiznis/storebridge/internal/orchestrator/domain"
	productsdomain "github.com/smallbiznis/storebridge/internal/products/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(registry *prometheus.Registry) *gin.Engine {
	return NewEngine(registry)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	orchestratorSvc orchestratordomain.Service
	productsSvc     productsdomain.Service
	attributesSvc   attributesdomain.Service
	customerInfo    *customerinfo.Cache
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	OrchestratorSvc orchestratordomain.Service
	ProductsSvc     productsdomain.Service
	AttributesSvc   attributesdomain.Service
	CustomerInfo    *customerinfo.Cache
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		orchestratorSvc: p.OrchestratorSvc,
		productsSvc:     p.ProductsSvc,
		attributesSvc:   p.AttributesSvc,
		customerInfo:    p.CustomerInfo,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/purchase", s.Purchase)
	v1.POST("/restore", s.RestorePurchases)
	v1.POST("/attributes", s.SetAttributes)
	v1.POST("/attributes/sync", s.SyncAttributes)
	v1.GET("/products", s.GetProducts)
	v1.GET("/offerings", s.GetOfferings)
	v1.GET("/eligibility", s.CheckIntroEligibility)
	v1.GET("/customerinfo", s.GetCustomerInfo)
}

// appUserID resolves the caller's app user identifier, falling back to the
// configured anonymous identifier.
func (s *Server) appUserID(c *gin.Context) string {
	if id := c.Query("app_user_id"); id != "" {
		return id
	}
	return s.cfg.DefaultAppUserID
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server exited", zap.Error(err))
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
