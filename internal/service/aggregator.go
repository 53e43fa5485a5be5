package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

// FinalizeResult is the campaign status seen by one Recompute call.
// Finalized is true only for the call that moved the campaign out of sending.
type FinalizeResult struct {
	CampaignID int
	Status     model.CampaignStatus
	Finalized  bool
}

// Recomputer re-evaluates whether a campaign is done sending.
type Recomputer interface {
	Recompute(ctx context.Context, campaignID int) (FinalizeResult, error)
}

// StatusAggregator finalizes a sending campaign once none of its recipients is
// pending. It is safe to call from any number of goroutines; the repository
// serializes the check-and-write per campaign.
type StatusAggregator struct {
	CampaignRepo repository.CampaignRepositoryInterface
	Metrics      *metrics.Metrics
	Log          logrus.FieldLogger

	// OnFinalize, if set, runs once per finalized campaign.
	OnFinalize func(FinalizeResult)
}

func (a *StatusAggregator) Recompute(ctx context.Context, campaignID int) (FinalizeResult, error) {
	status, finalized, err := a.CampaignRepo.FinalizeIfComplete(ctx, campaignID)
	if err != nil {
		return FinalizeResult{}, err
	}
	res := FinalizeResult{CampaignID: campaignID, Status: status, Finalized: finalized}
	if !finalized {
		return res, nil
	}

	logger(a.Log).WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"status":      status.String(),
	}).Info("Campaign finalized")
	if a.Metrics != nil {
		a.Metrics.FinalizationsTotal.WithLabelValues(status.String()).Inc()
	}
	if a.OnFinalize != nil {
		a.OnFinalize(res)
	}
	return res, nil
}

var _ Recomputer = (*StatusAggregator)(nil)
