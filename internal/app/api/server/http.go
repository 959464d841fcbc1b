package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/topservers/credits/docs"
	"github.com/topservers/credits/internal/app/api/handlers"
	mw "github.com/topservers/credits/internal/app/api/middleware"
	"github.com/topservers/credits/internal/app/service/notificationlog"
	"github.com/topservers/credits/internal/app/service/order"
	"github.com/topservers/credits/internal/app/service/payment"
	"github.com/topservers/credits/internal/app/service/provider"
	"github.com/topservers/credits/internal/app/service/reconcile"
	"github.com/topservers/credits/internal/app/service/txstore"
	cfgpkg "github.com/topservers/credits/pkg/config"
	metrics "github.com/topservers/credits/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request tracing only; request logger & access log are attached per
	// group in registerRoutes.
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Log      *zap.SugaredLogger
	Cfg      *cfgpkg.Config
	Registry *provider.Registry
	Engine   *reconcile.Engine
	Payments *payment.Service
	Orders   *order.Service
	Ledger   reconcile.CreditLedger
	Store    *txstore.Store
	Logs     *notificationlog.Service
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	log, cfg := d.Log, d.Cfg

	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Provider-facing routes: webhooks and browser return URLs. These
	// authenticate per payload (HMAC or API re-fetch), not per bearer token.
	handlers.RegisterWebhookRoutes(pub, d.Registry, d.Engine)

	// Buyer-facing APIs behind bearer auth
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.AuthMiddleware(cfg.Auth.JWTSecret))
	handlers.RegisterPaymentRoutes(apiV1, d.Payments, d.Orders, d.Ledger)

	admin := apiV1.Group("/admin")
	admin.Use(mw.AdminRequired())
	handlers.RegisterAdminRoutes(admin, d.Store, d.Logs)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
