package service

import (
	"context"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

type DashboardService struct {
	ContactRepo   repository.ContactRepositoryInterface
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
}

// Dashboard counts contacts, campaigns and successfully sent emails across
// every campaign.
func (s *DashboardService) Dashboard(ctx context.Context) (model.DashboardStats, error) {
	var (
		stats model.DashboardStats
		err   error
	)
	if stats.TotalContacts, err = s.ContactRepo.Count(ctx); err != nil {
		return stats, err
	}
	if stats.TotalCampaigns, err = s.CampaignRepo.Count(ctx); err != nil {
		return stats, err
	}
	if stats.EmailsSent, err = s.RecipientRepo.CountByStatus(ctx, model.RecipientSent); err != nil {
		return stats, err
	}
	return stats, nil
}
