package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/queue"
	"github.com/unclebandit/mailcampaign-backend/internal/repository/memory"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fixture wires the services on the in-memory store and queue, with an
// instant simulator.
type fixture struct {
	store      *memory.Store
	queue      *queue.InMemoryQueue
	metrics    *metrics.Metrics
	campaigns  *service.CampaignService
	contacts   *service.ContactService
	dashboard  *service.DashboardService
	aggregator *service.StatusAggregator
	dispatcher *service.Dispatcher
	sim        *service.DeliverySimulator

	finalized atomic.Int32
}

func newFixture(t *testing.T, successRate float64) *fixture {
	t.Helper()
	log := quietLogger()
	f := &fixture{
		store:   memory.NewStore(),
		queue:   queue.NewInMemoryQueue(log),
		metrics: metrics.New(nil),
	}
	f.campaigns = &service.CampaignService{
		CampaignRepo:  f.store.Campaigns(),
		RecipientRepo: f.store.Recipients(),
		Log:           log,
	}
	f.contacts = &service.ContactService{ContactRepo: f.store.Contacts(), Log: log}
	f.dashboard = &service.DashboardService{
		ContactRepo:   f.store.Contacts(),
		CampaignRepo:  f.store.Campaigns(),
		RecipientRepo: f.store.Recipients(),
	}
	f.aggregator = &service.StatusAggregator{
		CampaignRepo: f.store.Campaigns(),
		Metrics:      f.metrics,
		Log:          log,
		OnFinalize:   func(service.FinalizeResult) { f.finalized.Add(1) },
	}
	f.sim = service.NewDeliverySimulator(f.store.Recipients(), f.aggregator)
	f.sim.SuccessRate = successRate
	f.sim.MinDelay = 0
	f.sim.MaxDelay = 0
	f.sim.Metrics = f.metrics
	f.sim.Log = log

	f.dispatcher = &service.Dispatcher{
		CampaignRepo:  f.store.Campaigns(),
		RecipientRepo: f.store.Recipients(),
		Queue:         f.queue,
		Topic:         queue.TopicCampaignSends,
		Aggregator:    f.aggregator,
		Metrics:       f.metrics,
		Log:           log,
	}
	if err := service.StartDeliverySubscriber(f.queue, queue.TopicCampaignSends, f.sim); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return f
}

func (f *fixture) seedContacts(t *testing.T, n int) []int {
	t.Helper()
	return f.seedContactsFrom(t, 0, n)
}

// seedContactsFrom creates n contacts numbered from start, so repeated calls
// do not collide on email.
func (f *fixture) seedContactsFrom(t *testing.T, start, n int) []int {
	t.Helper()
	ids := make([]int, 0, n)
	for i := start; i < start+n; i++ {
		c, err := f.contacts.CreateContact(context.Background(), service.CreateContactInput{
			Name:  fmt.Sprintf("Contact %02d", i),
			Email: fmt.Sprintf("contact%d@example.com", i),
		})
		if err != nil {
			t.Fatalf("create contact: %v", err)
		}
		ids = append(ids, c.ID)
	}
	return ids
}

func (f *fixture) newCampaign(t *testing.T, contactIDs []int) *model.Campaign {
	t.Helper()
	c, err := f.campaigns.CreateCampaign(context.Background(), "Spring sale", "Everything is 20% off", contactIDs)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func (f *fixture) campaign(t *testing.T, id int) *model.Campaign {
	t.Helper()
	c, err := f.store.Campaigns().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	return c
}

// recordingQueue stores published jobs without running them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []model.DeliveryJob
}

func (q *recordingQueue) Publish(_ context.Context, _ string, job model.DeliveryJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Subscribe(string, queue.Handler) error { return nil }
func (q *recordingQueue) Shutdown(context.Context) error        { return nil }

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// brokenQueue rejects every publish.
type brokenQueue struct{}

var errBrokerDown = errors.New("broker down")

func (brokenQueue) Publish(context.Context, string, model.DeliveryJob) error { return errBrokerDown }
func (brokenQueue) Subscribe(string, queue.Handler) error                    { return nil }
func (brokenQueue) Shutdown(context.Context) error                           { return nil }

// fixedRand returns the same draw every time.
type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64     { return r.f }
func (r fixedRand) Int64N(n int64) int64 { return 0 }
