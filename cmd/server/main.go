// cmd/server/main.go
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
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/mailcampaign-backend/internal/config"
	"github.com/unclebandit/mailcampaign-backend/internal/controller"
	"github.com/unclebandit/mailcampaign-backend/internal/db"
	"github.com/unclebandit/mailcampaign-backend/internal/handler"
	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
	"github.com/unclebandit/mailcampaign-backend/internal/queue"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
	"github.com/unclebandit/mailcampaign-backend/internal/repository/memory"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

const shutdownTimeout = 10 * time.Second

type repos struct {
	contacts   repository.ContactRepositoryInterface
	campaigns  repository.CampaignRepositoryInterface
	recipients repository.RecipientRepositoryInterface
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	config.ConfigureLogging(cfg.LogLevel)
	log := logrus.StandardLogger()

	m := metrics.New(prometheus.DefaultRegisterer)

	store, err := openStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open store")
	}
	defer store.close()

	q, err := openQueue(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open queue")
	}
	topic := cfg.AMQP.Queue

	aggregator := &service.StatusAggregator{
		CampaignRepo: store.campaigns,
		Metrics:      m,
		Log:          log,
	}
	dispatcher := &service.Dispatcher{
		CampaignRepo:  store.campaigns,
		RecipientRepo: store.recipients,
		Queue:         q,
		Topic:         topic,
		Aggregator:    aggregator,
		Metrics:       m,
		Log:           log,
	}

	// With the in-process queue this server is also the delivery worker.
	// RabbitMQ deliveries are consumed by cmd/worker instead.
	if cfg.QueueDriver == config.QueueDriverMemory {
		sim := service.NewDeliverySimulator(store.recipients, aggregator)
		sim.SuccessRate = cfg.Delivery.SuccessRate
		sim.MinDelay = cfg.Delivery.MinDelay
		sim.MaxDelay = cfg.Delivery.MaxDelay
		sim.Metrics = m
		sim.Log = log
		if err := service.StartDeliverySubscriber(q, topic, sim); err != nil {
			log.WithError(err).Fatal("Failed to subscribe delivery worker")
		}
		if _, err := dispatcher.Resume(context.Background()); err != nil {
			log.WithError(err).Error("Failed to resume in-flight campaigns")
		}
	}

	router := handler.NewRouter(handler.Controllers{
		Campaigns: &controller.CampaignController{
			CampaignService: &service.CampaignService{
				CampaignRepo:  store.campaigns,
				RecipientRepo: store.recipients,
				Log:           log,
			},
			Dispatcher: dispatcher,
			Log:        log,
		},
		Contacts: &controller.ContactController{
			ContactService: &service.ContactService{ContactRepo: store.contacts, Log: log},
			Log:            log,
		},
		Dashboard: &controller.DashboardController{
			DashboardService: &service.DashboardService{
				ContactRepo:   store.contacts,
				CampaignRepo:  store.campaigns,
				RecipientRepo: store.recipients,
			},
			Log: log,
		},
	}, m, prometheus.DefaultGatherer, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Server forced to shutdown")
		}
		// Let scheduled deliveries finish so their campaigns get finalized.
		if err := q.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Queue shutdown interrupted in-flight deliveries")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Server stopped with error")
		return
	}
	log.Info("Server exited")
}

func openStore(cfg *config.Config) (*repos, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logrus.Warn("Using in-memory store, data is lost on restart")
		s := memory.NewStore()
		return &repos{
			contacts:   s.Contacts(),
			campaigns:  s.Campaigns(),
			recipients: s.Recipients(),
			close:      func() {},
		}, nil
	}

	if cfg.Database.Migrate {
		if err := db.Migrate(cfg.Database); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	return &repos{
		contacts:   &repository.ContactRepository{DB: conn},
		campaigns:  &repository.CampaignRepository{DB: conn},
		recipients: &repository.RecipientRepository{DB: conn},
		close: func() {
			if err := conn.Close(); err != nil {
				logrus.WithError(err).Warn("Error closing database")
			}
		},
	}, nil
}

func openQueue(cfg *config.Config, log logrus.FieldLogger) (queue.Queue, error) {
	if cfg.QueueDriver == config.QueueDriverRabbitMQ {
		q, err := queue.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Prefetch, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	return queue.NewInMemoryQueue(log), nil
}
