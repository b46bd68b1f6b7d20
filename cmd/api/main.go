package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jbj338033/flick-api/internal/config"
	"github.com/jbj338033/flick-api/internal/events"
	"github.com/jbj338033/flick-api/internal/httpx"
	kafkax "github.com/jbj338033/flick-api/internal/kafka"
	"github.com/jbj338033/flick-api/internal/orders"
	"github.com/jbj338033/flick-api/internal/payment"
	"github.com/jbj338033/flick-api/internal/postgres"
	"github.com/jbj338033/flick-api/internal/redisx"
	"github.com/jbj338033/flick-api/internal/users"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.MigrateUp(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	codes := &redisx.PaymentCodes{RDB: rdb, TTL: cfg.ReservationTTL}

	// Kafka producers, one per topic
	completed := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicPaymentCompleted, 1024)
	completed.Start(ctx)
	cancelled := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderCancelled, 1024)
	cancelled.Start(ctx)
	charged := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicBalanceCharged, 256)
	charged.Start(ctx)

	// Engine & services
	engine := payment.NewEngine(db, db, payment.NewPgStore, codes, completed, cancelled, cfg.ServiceName, cfg.ReservationTTL)
	userSvc := users.NewService(db, func(d postgres.DBTX) users.Store { return users.Repo{DB: d} }, charged, cfg.ServiceName)

	sweeper := payment.NewSweeper(db, payment.NewPgStore, codes, cfg.SweepInterval)
	go sweeper.Run(ctx)

	// Router & handlers
	router := httpx.NewRouter()
	(&httpx.PaymentHandler{Engine: engine, Sweeper: sweeper}).Register(router)
	(&httpx.UsersHandler{Service: userSvc, Repo: users.Repo{DB: db}}).Register(router)
	(&httpx.OrdersHandler{Repo: orders.Repo{DB: db}}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// close inboxes -> flush & close writers, then drain
	completed.Close()
	cancelled.Close()
	charged.Close()
	cancel()
	completed.WaitClosed()
	cancelled.WaitClosed()
	charged.WaitClosed()
}
