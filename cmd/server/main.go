package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/admin"
	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/auth"
	"github.com/sudo-init-do/stonemart/internal/authz"
	"github.com/sudo-init-do/stonemart/internal/cache"
	"github.com/sudo-init-do/stonemart/internal/config"
	"github.com/sudo-init-do/stonemart/internal/db"
	"github.com/sudo-init-do/stonemart/internal/disputes"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/kyc"
	"github.com/sudo-init-do/stonemart/internal/logging"
	"github.com/sudo-init-do/stonemart/internal/logistics"
	"github.com/sudo-init-do/stonemart/internal/marketplace"
	"github.com/sudo-init-do/stonemart/internal/messaging"
	mware "github.com/sudo-init-do/stonemart/internal/middleware"
	"github.com/sudo-init-do/stonemart/internal/payments"
	"github.com/sudo-init-do/stonemart/internal/store/pgstore"
	"github.com/sudo-init-do/stonemart/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.AutoMigrate {
		if err := db.MigrateUp(cfg.Postgres.DSN()); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
	}
	pool, err := db.Connect(ctx, cfg.Postgres.DSN())
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer pool.Close()
	st := pgstore.New(pool)

	var notifier alerts.Notifier = alerts.Discard{}
	var locations logistics.LocationCache
	rdb, err := cache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, notifications and live tracking disabled")
	} else {
		defer rdb.Close()
		locations = cache.NewLocations(rdb, cfg.LocationTTL, log)
		queue := alerts.NewQueue(asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer queue.Close()
		notifier = queue
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Nats.URL != "" {
		js, err := events.Connect(ctx, cfg.Nats.URL, log)
		if err != nil {
			log.WithError(err).Warn("nats unavailable, lifecycle events disabled")
		} else {
			defer js.Close()
			publisher = js
		}
	}

	authSvc := auth.NewService(st, cfg.JWTSecret, log)
	if err := authSvc.BootstrapAdmin(ctx, cfg.Admin); err != nil {
		log.WithError(err).Error("admin bootstrap failed")
	}

	chat := messaging.NewService(st, messaging.NewHubs(), notifier, log)
	market := marketplace.NewService(st, chat, notifier, publisher, log, marketplace.Options{
		BidValidity: cfg.BidValidity,
		Currency:    cfg.Payments.Currency,
	})
	cargo := logistics.NewService(st, locations, notifier, publisher, log)
	desk := disputes.NewService(st, chat, notifier, publisher, log)
	pay := payments.NewService(st, payments.NewLocalGateway(cfg.JWTSecret), notifier, publisher, log, cfg.Payments.Currency)

	e := newRouter(cfg, log, pool, routes{
		accounts:  st,
		auth:      auth.NewHandler(authSvc),
		users:     user.NewHandler(st),
		alerts:    alerts.NewHandler(st),
		market:    marketplace.NewHandler(market),
		cargo:     logistics.NewHandler(cargo),
		disputes:  disputes.NewHandler(desk),
		messaging: messaging.NewHandler(chat),
		payments:  payments.NewHandler(pay, cfg.Payments.WebhookSecret),
		admin:     admin.NewHandler(st, desk),
		kyc:       kyc.NewHandler(kyc.NewService(st, notifier, log)),
	})

	go func() {
		log.WithField("addr", cfg.ServerAddress).Info("API server listening")
		if err := e.Start(cfg.ServerAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
	log.Info("server stopped")
}

type routes struct {
	accounts  mware.UserLookup
	auth      *auth.Handler
	users     *user.Handler
	alerts    *alerts.Handler
	market    *marketplace.Handler
	cargo     *logistics.Handler
	disputes  *disputes.Handler
	messaging *messaging.Handler
	payments  *payments.Handler
	admin     *admin.Handler
	kyc       *kyc.Handler
}

func newRouter(cfg *config.Config, log *logrus.Logger, pool *pgxpool.Pool, r routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(log)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logging.RequestLogger(log))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Public routes
	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", r.auth.Signup)
	authGroup.POST("/login", r.auth.Login)

	e.GET("/users/:id/profile", r.users.GetPublicProfile)
	e.GET("/listings", r.market.ListListings)
	e.GET("/listings/:id", r.market.GetListing)
	e.POST("/payments/webhook", r.payments.Webhook)

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWT(cfg.JWTSecret), mware.ActiveUser(r.accounts))

	api.GET("/auth/me", r.auth.Me)
	api.PUT("/users/me/push-token", r.users.RegisterPushToken)
	api.GET("/notifications", r.alerts.ListNotifications)
	api.PATCH("/notifications/:id/read", r.alerts.MarkNotificationRead)

	api.POST("/listings", r.market.CreateListing, mware.Can(authz.ListingCreate))

	bids := api.Group("/bids")
	bids.POST("", r.market.CreateBid, mware.Can(authz.BidPropose))
	bids.GET("/mine", r.market.ListMyBids)
	bids.GET("/proposals", r.market.ListProposals, mware.Can(authz.BidReview))
	bids.GET("/listing/:listingId", r.market.ListListingBids)
	bids.GET("/:id", r.market.GetBid)
	bids.PATCH("/:id/counter", r.market.CounterBid)
	bids.PATCH("/:id/accept", r.market.AcceptBid, mware.Can(authz.BidAccept))
	bids.PATCH("/:id/reject", r.market.RejectBid, mware.Can(authz.BidReject))
	bids.PATCH("/:id/withdraw", r.market.WithdrawBid, mware.Can(authz.BidWithdraw))

	orders := api.Group("/orders")
	orders.POST("", r.market.CreateOrder, mware.Can(authz.OrderCreate))
	orders.GET("/seller", r.market.ListSellerOrders)
	orders.GET("/buyer", r.market.ListBuyerOrders)
	orders.GET("/:id", r.market.GetOrder)
	orders.PATCH("/:id/status", r.market.UpdateOrderStatus)
	orders.PATCH("/:id/details", r.market.UpdateOrderDetails)
	orders.PATCH("/:id/rating", r.market.RateOrder)

	api.POST("/invoices/from-bid/:bidId", r.market.SendInvoice, mware.Can(authz.InvoiceSend))
	api.GET("/invoices/:id", r.market.GetInvoice)

	api.POST("/payments/orders/:id/intent", r.payments.CreateIntent, mware.Can(authz.OrderPay))

	jobs := api.Group("/jobs")
	jobs.POST("", r.cargo.PostJob, mware.Can(authz.JobPost))
	jobs.GET("/vendor", r.cargo.ListVendorJobs, mware.Can(authz.JobVendorList))
	jobs.GET("/driver", r.cargo.ListDriverJobs, mware.Can(authz.JobBrowse))
	jobs.GET("/:id", r.cargo.GetJob)
	jobs.POST("/:id/assign", r.cargo.ClaimJob, mware.Can(authz.JobClaim))
	jobs.PATCH("/:id/status", r.cargo.UpdateJobStatus, mware.Can(authz.JobUpdateStatus))

	tracking := api.Group("/tracking")
	tracking.POST("/location", r.cargo.ReportLocation, mware.Can(authz.LocationReport))
	tracking.GET("/shipments/:id", r.cargo.GetShipment)
	tracking.GET("/shipments/:id/location", r.cargo.CurrentLocation)
	tracking.GET("/shipments/:id/history", r.cargo.LocationHistory)
	tracking.GET("/shipments/:id/live", r.cargo.LiveLocation)

	disputeGroup := api.Group("/disputes")
	disputeGroup.POST("", r.disputes.OpenDispute, mware.Can(authz.DisputeOpen))
	disputeGroup.GET("/mine", r.disputes.ListMine)
	disputeGroup.GET("/:id", r.disputes.GetDispute)
	disputeGroup.PATCH("/:id/status", r.disputes.UpdateStatus, mware.Can(authz.DisputeUpdate))

	api.GET("/kyc/driver", r.kyc.Status, mware.Can(authz.KYCSubmit))
	api.POST("/kyc/driver", r.kyc.Submit, mware.Can(authz.KYCSubmit))

	api.GET("/channels/:id/messages", r.messaging.ListMessages)
	api.POST("/channels/:id/messages", r.messaging.SendMessage)
	api.GET("/channels/:id/ws", r.messaging.ChannelWS)

	// Admin routes
	adminGroup := e.Group("/admin")
	adminGroup.Use(mware.JWT(cfg.JWTSecret), mware.ActiveUser(r.accounts))
	adminGroup.Use(mware.AdminGuard)
	adminGroup.GET("/disputes", r.admin.ListDisputes)
	adminGroup.GET("/disputes/:id", r.admin.GetDispute)
	adminGroup.GET("/users", r.admin.ListUsers)
	adminGroup.POST("/users/:id/suspend", r.admin.SuspendUser)
	adminGroup.POST("/users/:id/activate", r.admin.ActivateUser)
	adminGroup.POST("/users/:id/role", r.admin.SetRole)
	adminGroup.GET("/kyc", r.kyc.Queue)
	adminGroup.PATCH("/kyc/:userId", r.kyc.Review)

	return e
}
