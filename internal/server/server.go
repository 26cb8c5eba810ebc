package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/config"
	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	gracedomain "github.com/smallbiznis/coursepay/internal/grace/domain"
	"github.com/smallbiznis/coursepay/internal/observability"
	obslogger "github.com/smallbiznis/coursepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/coursepay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/coursepay/internal/observability/tracing"
	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
	"github.com/smallbiznis/coursepay/internal/providers/email"
	webhookdomain "github.com/smallbiznis/coursepay/internal/webhook/domain"
)

// maxWebhookBody caps the raw webhook payload. Expanded checkout
// sessions with many line items run to a few hundred KB.
const maxWebhookBody = 2 << 20

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(metrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	webhookSvc  webhookdomain.Service
	checkoutSvc checkoutdomain.Service
	graceSvc    gracedomain.Manager
	keySvc      productkeydomain.Service
	provisioner entitlementdomain.Provisioner
	mailer      email.Mailer
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	WebhookSvc  webhookdomain.Service
	CheckoutSvc checkoutdomain.Service
	GraceSvc    gracedomain.Manager
	KeySvc      productkeydomain.Service
	Provisioner entitlementdomain.Provisioner
	Mailer      email.Mailer
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http"),
		webhookSvc:  p.WebhookSvc,
		checkoutSvc: p.CheckoutSvc,
		graceSvc:    p.GraceSvc,
		keySvc:      p.KeySvc,
		provisioner: p.Provisioner,
		mailer:      p.Mailer,
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	r := s.engine

	r.GET("/health", s.Health)
	r.POST("/webhook", BodyLimit(maxWebhookBody), s.HandleWebhook)

	// -------- Charges --------
	r.POST("/payments", s.CreatePayment)
	r.GET("/payments/:id", s.GetPayment)
	r.POST("/payments/:id/capture", s.CapturePayment)
	r.POST("/payments/:id/retry", s.RetryPayment)

	// -------- Checkout --------
	r.POST("/checkout-session", s.CreateCheckoutSession)
	r.POST("/purchases/confirmation", s.ConfirmPurchase)

	// -------- Subscriptions --------
	r.POST("/subscriptions", s.CreateSubscription)
	r.GET("/subscriptions/:id", s.GetSubscription)
	r.DELETE("/subscriptions/:id", s.CancelSubscription)
	r.POST("/subscriptions/:id/handle-failed-payment", s.HandleFailedPayment)
	r.POST("/subscriptions/:id/reminder", s.SendReminder)
	r.POST("/subscriptions/:id/payment-method", s.UpdatePaymentMethod)

	// -------- Prices --------
	r.POST("/products/:id/prices", s.CreatePrices)
	r.POST("/products/:id/deactivate-prices", s.DeactivatePrices)
	r.POST("/products/:id/activate-prices", s.ActivatePrices)

	// -------- Product keys --------
	r.GET("/product-keys/:key", s.GetProductKey)
	r.POST("/product-keys/:key/redeem", s.RedeemProductKey)
}
