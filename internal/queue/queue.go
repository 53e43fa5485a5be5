package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// TopicCampaignSends carries one job per recipient to deliver.
const TopicCampaignSends = "campaign_sends"

var ErrQueueClosed = errors.New("queue is shut down")

// Handler processes one delivery job. Returned errors are logged; jobs are
// never retried.
type Handler func(ctx context.Context, job model.DeliveryJob) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, job model.DeliveryJob) error
	Subscribe(topic string, handler Handler) error
	Shutdown(ctx context.Context) error
}

// InMemoryQueue runs every published job on its own goroutine, once per
// subscriber of the topic.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	closed   bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log logrus.FieldLogger) *InMemoryQueue {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryQueue{
		handlers: make(map[string][]Handler),
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
}

// Publish hands the job to all subscribers and returns without waiting.
// Jobs run under the queue's own context, not the publisher's, so they
// outlive the request that scheduled them.
func (q *InMemoryQueue) Publish(_ context.Context, topic string, job model.DeliveryJob) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	handlers := q.handlers[topic]
	if len(handlers) == 0 {
		q.mu.Unlock()
		return fmt.Errorf("no subscribers for topic %s", topic)
	}
	q.wg.Add(len(handlers))
	q.mu.Unlock()

	for _, handler := range handlers {
		go q.processJob(topic, handler, job)
	}
	return nil
}

func (q *InMemoryQueue) processJob(topic string, handler Handler, job model.DeliveryJob) {
	defer q.wg.Done()

	entry := q.log.WithFields(logrus.Fields{
		"topic":        topic,
		"campaign_id":  job.CampaignID,
		"recipient_id": job.RecipientID,
	})
	if err := handler(q.ctx, job); err != nil {
		entry.WithError(err).Error("Job failed")
		return
	}
	entry.Debug("Job processed")
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every job published so far has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// Shutdown stops accepting jobs and waits for in-flight ones. If ctx expires
// first, the jobs' context is cancelled and ctx.Err() is returned.
func (q *InMemoryQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

var _ Queue = (*InMemoryQueue)(nil)
