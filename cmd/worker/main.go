package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/mailcampaign-backend/internal/config"
	"github.com/unclebandit/mailcampaign-backend/internal/db"
	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
	"github.com/unclebandit/mailcampaign-backend/internal/queue"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

const shutdownTimeout = 30 * time.Second

// The worker consumes delivery jobs from RabbitMQ and runs the simulator on
// each, against the same PostgreSQL database the server writes to.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	config.ConfigureLogging(cfg.LogLevel)
	log := logrus.StandardLogger()

	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Fatal("The worker needs STORE_DRIVER=postgres")
	}

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to DB")
	}
	defer conn.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}

	aggregator := &service.StatusAggregator{
		CampaignRepo: campaignRepo,
		Metrics:      m,
		Log:          log,
	}
	sim := service.NewDeliverySimulator(recipientRepo, aggregator)
	sim.SuccessRate = cfg.Delivery.SuccessRate
	sim.MinDelay = cfg.Delivery.MinDelay
	sim.MaxDelay = cfg.Delivery.MaxDelay
	sim.Metrics = m
	sim.Log = log

	q, err := queue.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Prefetch, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	if err := service.StartDeliverySubscriber(q, cfg.AMQP.Queue, sim); err != nil {
		log.WithError(err).Fatal("Failed to register consumer")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down worker...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := q.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Requeued interrupted deliveries")
		}
		return srv.Shutdown(shutdownCtx)
	})

	log.WithFields(logrus.Fields{
		"queue":    cfg.AMQP.Queue,
		"prefetch": cfg.AMQP.Prefetch,
	}).Info("Worker running, waiting for messages...")
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Worker stopped with error")
	}
}
