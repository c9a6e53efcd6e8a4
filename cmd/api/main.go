package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/ariefcatur/go-kiosk-orders/internal/checkout"
	"github.com/ariefcatur/go-kiosk-orders/internal/config"
	"github.com/ariefcatur/go-kiosk-orders/internal/events"
	"github.com/ariefcatur/go-kiosk-orders/internal/history"
	"github.com/ariefcatur/go-kiosk-orders/internal/httpx"
	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-kiosk-orders/internal/kafka"
	"github.com/ariefcatur/go-kiosk-orders/internal/logging"
	"github.com/ariefcatur/go-kiosk-orders/internal/notify"
	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/ariefcatur/go-kiosk-orders/internal/payment"
	"github.com/ariefcatur/go-kiosk-orders/internal/postgres"
	"github.com/ariefcatur/go-kiosk-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.ServiceName, cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	pricing, err := cfg.Pricing()
	if err != nil {
		logger.Fatal("pricing", zap.Error(err))
	}
	policy, err := cfg.Policy()
	if err != nil {
		logger.Fatal("stock policy", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if cfg.RunMigrations {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := &redisx.OrderCache{R: rdb}

	// Kafka producer: status events + operator push
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger.Named("kafka"))
	prod.Start()

	// Notifications
	senders := []notify.Sender{&notify.PushSender{P: prod, Producer: cfg.ServiceName}}
	if cfg.SMTPEnabled() {
		senders = append(senders, notify.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.OperatorEmails))
	}
	dispatcher := notify.NewDispatcher(&notify.PGTargets{DB: db}, cfg.OperatorID, senders, cfg.NotifyBuffer, logger.Named("notify"))

	// Core
	sink := orders.MultiSink{&events.StatusPublisher{P: prod, Producer: cfg.ServiceName}, cache}
	machine := orders.NewMachine(&orders.PGRepository{DB: db}, pricing, sink, logger.Named("orders"))
	carts := &cart.PGStore{DB: db}
	reconciler := inventory.NewReconciler(&inventory.PGStore{DB: db}, policy, logger.Named("inventory"))

	var sessions checkout.Sessions
	var webhooks httpx.WebhookParser
	if cfg.StripeSecretKey != "" {
		st := payment.NewStripe(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.CheckoutSuccessURL,
			CancelURL:     cfg.CheckoutCancelURL,
			Currency:      cfg.Currency,
		})
		sessions, webhooks = st, st
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, e-wallet checkout disabled")
	}

	orch := checkout.New(checkout.Deps{
		Carts:      carts,
		Orders:     machine,
		Reconciler: reconciler,
		Sessions:   sessions,
		Notifier:   dispatcher,
		Backoff: checkout.Backoff{
			Attempts: cfg.ReconcileMaxAttempts,
			Base:     cfg.ReconcileBaseBackoff,
			Max:      cfg.ReconcileMaxBackoff,
		},
		Log: logger.Named("checkout"),
	})

	// HTTP
	router := httpx.NewRouter(logger.Named("http"))
	(&httpx.CartsHandler{Carts: carts}).Register(router)
	(&httpx.OrdersHandler{
		Checkout: orch,
		Orders:   machine,
		Cache:    cache,
		History:  &history.PGReader{DB: db},
		Log:      logger,
	}).Register(router)
	if webhooks != nil {
		(&httpx.PaymentsHandler{
			Webhooks: webhooks,
			Dedup:    &redisx.Dedup{R: rdb, Scope: "stripe-webhook"},
			Checkout: orch,
			Log:      logger,
		}).Register(router)
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	dispatcher.Close() // drain queued notifications into the producer
	prod.Close()       // flush & close writer
}
