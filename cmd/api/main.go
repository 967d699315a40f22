package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"teashop/internal/config"
	"teashop/internal/httpx"
	kafkax "teashop/internal/kafka"
	"teashop/internal/orders"
	"teashop/internal/postgres"
	"teashop/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := config.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, log, 1024)
	prod.Start(ctx)

	engine := orders.NewEngine(orders.NewPgStore(db), log)
	engine.Window = cfg.PaymentWindow
	engine.Events = &orders.Publisher{Producer: prod, Service: cfg.ServiceName}

	sweeper := &orders.Sweeper{Engine: engine, Interval: cfg.SweepInterval, Log: log}
	go sweeper.Run(ctx)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Engine: engine, Redis: rdb, Log: log}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()          // stops sweeper and producer loop
	prod.WaitClosed() // drain queued events
}
