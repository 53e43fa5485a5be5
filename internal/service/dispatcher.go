package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/queue"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

// Result struct for SendCampaign
type SendCampaignResult struct {
	CampaignID     int                  `json:"campaign_id"`
	MessagesQueued int                  `json:"messages_queued"`
	Status         model.CampaignStatus `json:"status"`
}

// Dispatcher starts a campaign send: it claims the draft and schedules one
// delivery job per pending recipient.
type Dispatcher struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	Queue         queue.Queue
	Topic         string
	Aggregator    Recomputer
	Metrics       *metrics.Metrics
	Log           logrus.FieldLogger
}

// SendCampaign moves a draft campaign to sending and returns once every job
// is scheduled; deliveries complete in the background. Any status other than
// draft yields an invalid state error and nothing is scheduled.
func (d *Dispatcher) SendCampaign(ctx context.Context, campaignID int) (*SendCampaignResult, error) {
	if err := d.CampaignRepo.MarkSending(ctx, campaignID); err != nil {
		return nil, err
	}
	return d.schedule(ctx, campaignID)
}

// Resume reschedules the pending recipients of every campaign left in
// sending, for queues that lose their jobs on restart. It must not run while
// jobs for those campaigns may still be queued.
func (d *Dispatcher) Resume(ctx context.Context) (int, error) {
	ids, err := d.CampaignRepo.ListIDsByStatus(ctx, model.CampaignSending)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := d.schedule(ctx, id); err != nil {
			return 0, fmt.Errorf("resume campaign %d: %w", id, err)
		}
	}
	if len(ids) > 0 {
		logger(d.Log).WithField("campaigns", len(ids)).Info("Resumed in-flight campaigns")
	}
	return len(ids), nil
}

func (d *Dispatcher) schedule(ctx context.Context, campaignID int) (*SendCampaignResult, error) {
	log := logger(d.Log).WithField("campaign_id", campaignID)

	ids, err := d.RecipientRepo.ListPendingIDs(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list pending recipients: %w", err)
	}

	result := &SendCampaignResult{
		CampaignID: campaignID,
		Status:     model.CampaignSending,
	}
	topic := d.topic()
	enqueueFailed := 0
	for _, id := range ids {
		job := model.DeliveryJob{RecipientID: id, CampaignID: campaignID}
		if err := d.Queue.Publish(ctx, topic, job); err != nil {
			log.WithError(err).WithField("recipient_id", id).Error("Failed to enqueue delivery")
			if rerr := d.failRecipient(ctx, id, err); rerr != nil {
				return result, rerr
			}
			enqueueFailed++
			continue
		}
		result.MessagesQueued++
	}
	if d.Metrics != nil {
		d.Metrics.DispatchedTotal.Add(float64(result.MessagesQueued))
	}

	// Queued jobs recompute on completion. Recipients that never reached the
	// queue, or an empty campaign, need a recompute from here.
	if enqueueFailed > 0 || result.MessagesQueued == 0 {
		res, err := d.Aggregator.Recompute(ctx, campaignID)
		if err != nil {
			return result, err
		}
		result.Status = res.Status
	}

	log.WithFields(logrus.Fields{
		"queued": result.MessagesQueued,
		"failed": enqueueFailed,
	}).Info("Campaign dispatched")
	return result, nil
}

func (d *Dispatcher) failRecipient(ctx context.Context, recipientID int, cause error) error {
	_, err := d.RecipientRepo.Resolve(ctx, recipientID, model.Resolution{
		Status:       model.RecipientFailed,
		ErrorMessage: "enqueue failed: " + cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("resolve recipient %d: %w", recipientID, err)
	}
	return nil
}

func (d *Dispatcher) topic() string {
	if d.Topic == "" {
		return queue.TopicCampaignSends
	}
	return d.Topic
}
