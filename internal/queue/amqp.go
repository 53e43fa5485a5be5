package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// AMQPQueue publishes delivery jobs to RabbitMQ and consumes them with manual
// acks. Each topic maps to a durable queue of the same name.
type AMQPQueue struct {
	conn     *amqp.Connection
	pubMu    sync.Mutex
	pubCh    *amqp.Channel
	declared map[string]bool
	prefetch int

	subMu    sync.Mutex
	consumer []*amqp.Channel

	wg         sync.WaitGroup
	stopCtx    context.Context
	stop       context.CancelFunc
	jobCtx     context.Context
	cancelJobs context.CancelFunc
	log        logrus.FieldLogger
}

// DialAMQP connects to RabbitMQ and opens the publishing channel.
func DialAMQP(url string, prefetch int, log logrus.FieldLogger) (*AMQPQueue, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	stopCtx, stop := context.WithCancel(context.Background())
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	return &AMQPQueue{
		conn:       conn,
		pubCh:      ch,
		declared:   make(map[string]bool),
		prefetch:   prefetch,
		stopCtx:    stopCtx,
		stop:       stop,
		jobCtx:     jobCtx,
		cancelJobs: cancelJobs,
		log:        log,
	}, nil
}

func declare(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

func (q *AMQPQueue) Publish(_ context.Context, topic string, job model.DeliveryJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	// amqp.Channel is not safe for concurrent publishing.
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if !q.declared[topic] {
		if err := declare(q.pubCh, topic); err != nil {
			return err
		}
		q.declared[topic] = true
	}

	err = q.pubCh.Publish(
		"",    // exchange
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Subscribe starts consuming topic on a dedicated channel. Up to prefetch
// deliveries are handled concurrently; each is acked once its handler
// returns, whatever the outcome, except when the handler was interrupted by
// shutdown: that delivery is requeued for another worker.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return err
	}

	tag := "delivery-" + uuid.NewString()
	msgs, err := ch.Consume(
		topic,
		tag,
		false, // autoAck = false, ack after handling
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.subMu.Lock()
	q.consumer = append(q.consumer, ch)
	q.subMu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-q.stopCtx.Done():
				// Unacked prefetched deliveries return to the queue when the
				// channel closes in Shutdown.
				if err := ch.Cancel(tag, false); err != nil {
					q.log.WithError(err).Warn("Failed to cancel consumer")
				}
				return
			case d, ok := <-msgs:
				if !ok {
					q.log.WithField("topic", topic).Warn("Consumer channel closed")
					return
				}
				q.wg.Add(1)
				go q.handleDelivery(topic, d, handler)
			}
		}
	}()
	return nil
}

func (q *AMQPQueue) handleDelivery(topic string, d amqp.Delivery, handler Handler) {
	defer q.wg.Done()

	var job model.DeliveryJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.log.WithError(err).WithField("message_id", d.MessageId).Error("Invalid job")
		_ = d.Ack(false)
		return
	}

	entry := q.log.WithFields(logrus.Fields{
		"topic":        topic,
		"message_id":   d.MessageId,
		"campaign_id":  job.CampaignID,
		"recipient_id": job.RecipientID,
	})
	err := handler(q.jobCtx, job)
	switch settle(err, d.Redelivered, q.jobCtx.Err() != nil) {
	case requeue:
		entry.WithError(err).Warn("Job failed, requeueing")
		if nerr := d.Nack(false, true); nerr != nil {
			entry.WithError(nerr).Warn("Failed to nack delivery")
		}
		return
	case drop:
		entry.WithError(err).Error("Job failed after redelivery, dropping")
	default:
		entry.Debug("Job processed")
	}
	if err := d.Ack(false); err != nil {
		entry.WithError(err).Warn("Failed to ack delivery")
	}
}

type disposition int

const (
	ack disposition = iota
	requeue
	drop
)

// settle decides what happens to a delivery once its handler returns. Jobs
// cut short by shutdown always go back to the queue. Other failures get one
// redelivery, since the handler is a no-op for recipients already resolved.
func settle(err error, redelivered, shuttingDown bool) disposition {
	switch {
	case err == nil:
		return ack
	case shuttingDown && errors.Is(err, context.Canceled):
		return requeue
	case !redelivered:
		return requeue
	default:
		return drop
	}
}

// Shutdown stops consuming and waits for in-flight handlers. If ctx expires
// first the handlers are cancelled, which requeues their deliveries. The
// connection is closed last.
func (q *AMQPQueue) Shutdown(ctx context.Context) error {
	q.stop()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		q.cancelJobs()
		<-done
	}
	q.cancelJobs()

	q.subMu.Lock()
	for _, ch := range q.consumer {
		if cerr := ch.Close(); cerr != nil {
			q.log.WithError(cerr).Warn("Error closing consumer channel")
		}
	}
	q.subMu.Unlock()

	q.pubMu.Lock()
	if cerr := q.pubCh.Close(); cerr != nil {
		q.log.WithError(cerr).Warn("Error closing channel")
	}
	q.pubMu.Unlock()
	if cerr := q.conn.Close(); cerr != nil {
		q.log.WithError(cerr).Warn("Error closing connection")
	}
	return err
}

var _ Queue = (*AMQPQueue)(nil)
