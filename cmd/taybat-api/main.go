// README: Entry point; loads config, wires services, starts the HTTP server
// and the dispatch loop.
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

	"taybat/internal/config"
	httptransport "taybat/internal/http"
	"taybat/internal/infra"
	"taybat/internal/logging"
	"taybat/internal/modules/dispatch"
	"taybat/internal/modules/driver"
	"taybat/internal/modules/order"
	"taybat/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Error("db init", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	orderStore := order.NewPostgresStore(dbPool)
	orderSvc := order.NewService(orderStore)

	profileStore := driver.NewPostgresStore(dbPool)
	locationStore := driver.NewRedisLocationStore(redisClient)
	driverSvc := driver.NewService(profileStore, locationStore)

	var sender notify.Sender
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSender := notify.NewKafkaSender(infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer kafkaSender.Close()
		sender = kafkaSender
	} else {
		sender = &notify.LogSender{Logger: logger}
	}

	dispatchStore := dispatch.NewPostgresStore(dbPool)
	dispatchSvc := dispatch.NewService(
		dispatchStore,
		dispatch.NewSelector(driverSvc, cfg.Dispatch.LocationStaleness),
		driverSvc,
		sender,
		dispatch.TimerScheduler{},
		cfg.Dispatch,
		logger,
	)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Order:    orderSvc,
		Driver:   driverSvc,
		Dispatch: dispatchSvc,
		Logger:   logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go dispatchSvc.RunLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("server starting", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
