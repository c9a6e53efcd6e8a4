package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/ariefcatur/go-kiosk-orders/internal/checkout"
	"github.com/ariefcatur/go-kiosk-orders/internal/config"
	"github.com/ariefcatur/go-kiosk-orders/internal/events"
	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-kiosk-orders/internal/kafka"
	"github.com/ariefcatur/go-kiosk-orders/internal/logging"
	"github.com/ariefcatur/go-kiosk-orders/internal/notify"
	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/ariefcatur/go-kiosk-orders/internal/postgres"
	"github.com/ariefcatur/go-kiosk-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Finalizes e-wallet orders from PaymentSucceeded events bridged onto Kafka.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	service := cfg.ServiceName + "-inventory"
	logger, err := logging.New(service, cfg.AppEnv, cfg.LogLevel)
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
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger.Named("kafka"))
	prod.Start()

	dispatcher := notify.NewDispatcher(&notify.PGTargets{DB: db}, cfg.OperatorID,
		[]notify.Sender{&notify.PushSender{P: prod, Producer: service}}, cfg.NotifyBuffer, logger.Named("notify"))

	sink := orders.MultiSink{&events.StatusPublisher{P: prod, Producer: service}, &redisx.OrderCache{R: rdb}}
	orch := checkout.New(checkout.Deps{
		Carts:      &cart.PGStore{DB: db},
		Orders:     orders.NewMachine(&orders.PGRepository{DB: db}, pricing, sink, logger.Named("orders")),
		Reconciler: inventory.NewReconciler(&inventory.PGStore{DB: db}, policy, logger.Named("inventory")),
		Notifier:   dispatcher,
		Backoff: checkout.Backoff{
			Attempts: cfg.ReconcileMaxAttempts,
			Base:     cfg.ReconcileBaseBackoff,
			Max:      cfg.ReconcileMaxBackoff,
		},
		Log: logger.Named("checkout"),
	})
	handler := &checkout.PaymentEvents{
		Checkout: orch,
		Dedup:    &redisx.Dedup{R: rdb, Scope: service},
		Log:      logger,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, events.TopicPaymentSucceeded, cfg.InventoryWorkers, logger.Named("consumer"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("payment consumer started",
			zap.String("group", cfg.InventoryGroup),
			zap.String("topic", events.TopicPaymentSucceeded),
			zap.Int("workers", cfg.InventoryWorkers))
		if err := cons.Start(ctx, handler.Handle); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	<-done
	dispatcher.Close()
	prod.Close()
}
