package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

// DeliveryFailureMessage is recorded on recipients whose simulated send fails.
const DeliveryFailureMessage = "random email delivery failure"

// Rand is the randomness the simulator draws on. It must be safe for
// concurrent use.
type Rand interface {
	Float64() float64
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Float64() float64      { return rand.Float64() }
func (globalRand) Int64N(n int64) int64 { return rand.Int63n(n) }

// DeliverySimulator stands in for an email provider: after a random delay it
// marks a pending recipient sent or failed, then asks the aggregator whether
// the campaign is done.
type DeliverySimulator struct {
	RecipientRepo repository.RecipientRepositoryInterface
	Aggregator    Recomputer

	SuccessRate float64
	MinDelay    time.Duration
	MaxDelay    time.Duration

	Rand    Rand
	Now     func() time.Time
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

// NewDeliverySimulator uses the default 90% success rate and 1s to 3s delay.
func NewDeliverySimulator(recipients repository.RecipientRepositoryInterface, aggregator Recomputer) *DeliverySimulator {
	return &DeliverySimulator{
		RecipientRepo: recipients,
		Aggregator:    aggregator,
		SuccessRate:   0.9,
		MinDelay:      time.Second,
		MaxDelay:      3 * time.Second,
	}
}

// Attempt simulates delivery to one recipient. A recipient that is no longer
// pending is left untouched. Simulated failures are recorded on the recipient
// and are not returned as errors.
func (s *DeliverySimulator) Attempt(ctx context.Context, recipientID int) error {
	rec, err := s.RecipientRepo.GetByID(ctx, recipientID)
	if err != nil {
		return err
	}
	log := logger(s.Log).WithFields(logrus.Fields{
		"campaign_id":  rec.CampaignID,
		"recipient_id": recipientID,
	})

	if rec.Status == model.RecipientPending {
		if err := sleep(ctx, s.delay()); err != nil {
			return err
		}

		res := s.roll()
		applied, err := s.RecipientRepo.Resolve(ctx, recipientID, res)
		if err != nil {
			return fmt.Errorf("resolve recipient %d: %w", recipientID, err)
		}
		if applied {
			if s.Metrics != nil {
				s.Metrics.DeliveriesTotal.WithLabelValues(res.Status.String()).Inc()
			}
			log.WithField("status", res.Status.String()).Debug("Delivery simulated")
		} else {
			log.Debug("Recipient resolved concurrently, skipping")
		}
	} else {
		log.WithField("status", rec.Status.String()).Debug("Recipient already resolved")
	}

	if _, err := s.Aggregator.Recompute(ctx, rec.CampaignID); err != nil {
		return fmt.Errorf("recompute campaign %d: %w", rec.CampaignID, err)
	}
	return nil
}

// HandleJob adapts Attempt to a queue handler. A recipient deleted while its
// job was queued still triggers a recompute of its campaign, so the campaign
// cannot be left waiting on it.
func (s *DeliverySimulator) HandleJob(ctx context.Context, job model.DeliveryJob) error {
	err := s.Attempt(ctx, job.RecipientID)
	if err == nil || !appErrors.IsNotFound(err) {
		return err
	}

	logger(s.Log).WithFields(logrus.Fields{
		"campaign_id":  job.CampaignID,
		"recipient_id": job.RecipientID,
	}).Warn("Recipient no longer exists")
	if _, rerr := s.Aggregator.Recompute(ctx, job.CampaignID); rerr != nil && !appErrors.IsNotFound(rerr) {
		return rerr
	}
	return nil
}

func (s *DeliverySimulator) roll() model.Resolution {
	if s.random().Float64() < s.SuccessRate {
		now := s.now()
		return model.Resolution{Status: model.RecipientSent, SentAt: &now}
	}
	return model.Resolution{Status: model.RecipientFailed, ErrorMessage: DeliveryFailureMessage}
}

func (s *DeliverySimulator) delay() time.Duration {
	if s.MaxDelay <= s.MinDelay {
		return s.MinDelay
	}
	span := int64(s.MaxDelay - s.MinDelay)
	return s.MinDelay + time.Duration(s.random().Int64N(span+1))
}

func (s *DeliverySimulator) random() Rand {
	if s.Rand == nil {
		return globalRand{}
	}
	return s.Rand
}

func (s *DeliverySimulator) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
