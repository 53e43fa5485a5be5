// internal/service/campaign_service.go
package service

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

const (
	maxSubjectLength = 255

	defaultCampaignPageSize = 10
	maxPageSize             = 100

	// maxPage keeps (page-1)*pageSize well inside a 32-bit int.
	maxPage = math.MaxInt32 / maxPageSize
)

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	Log           logrus.FieldLogger
}

type CampaignDetails struct {
	ID         int                  `json:"id"`
	Subject    string               `json:"subject"`
	Body       string               `json:"body"`
	Status     model.CampaignStatus `json:"status"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
	Recipients []*model.Recipient   `json:"recipients"`
	Stats      model.CampaignStats  `json:"stats"`
}

// CreateCampaign validates the input and stores a draft with one pending
// recipient per distinct contact.
func (s *CampaignService) CreateCampaign(ctx context.Context, subject, body string, ids []int) (*model.Campaign, error) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)

	verr := &appErrors.ValidationError{}
	switch {
	case subject == "":
		verr.Add("subject", "can't be blank")
	case utf8.RuneCountInString(subject) > maxSubjectLength:
		verr.Add("subject", "is too long (maximum is 255 characters)")
	}
	if body == "" {
		verr.Add("body", "can't be blank")
	}

	contactIDs := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if id <= 0 {
			verr.Add("contact_ids", "must be positive ids")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		contactIDs = append(contactIDs, id)
	}
	if len(ids) == 0 {
		verr.Add("contact_ids", "must select at least one contact")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Subject: subject,
		Body:    body,
		Status:  model.CampaignDraft,
	}
	if err := s.CampaignRepo.CreateWithRecipients(ctx, c, contactIDs); err != nil {
		return nil, err
	}
	c.RecipientsCount = len(contactIDs)

	logger(s.Log).WithFields(logrus.Fields{
		"campaign_id": c.ID,
		"recipients":  len(contactIDs),
	}).Info("Campaign created")
	return c, nil
}

// ListCampaigns fetches campaigns newest first with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int) ([]model.Campaign, map[string]int, error) {
	page, pageSize, offset := normalizePage(page, pageSize, defaultCampaignPageSize)

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}
	return campaigns, pagination(page, pageSize, total), nil
}

// Stats reports the recipient tally of a campaign. It has no side effects.
func (s *CampaignService) Stats(ctx context.Context, campaignID int) (model.CampaignStats, error) {
	counts, err := s.CampaignRepo.GetCampaignStats(ctx, campaignID)
	if err != nil {
		return model.CampaignStats{}, err
	}
	return model.NewCampaignStats(counts), nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	recipients, err := s.RecipientRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	// Derive stats from the same snapshot the recipients list shows.
	var counts model.StatusCounts
	for _, r := range recipients {
		switch r.Status {
		case model.RecipientPending:
			counts.Pending++
		case model.RecipientSent:
			counts.Sent++
		case model.RecipientFailed:
			counts.Failed++
		}
	}

	return &CampaignDetails{
		ID:         campaign.ID,
		Subject:    campaign.Subject,
		Body:       campaign.Body,
		Status:     campaign.Status,
		CreatedAt:  campaign.CreatedAt,
		UpdatedAt:  campaign.UpdatedAt,
		Recipients: recipients,
		Stats:      model.NewCampaignStats(counts),
	}, nil
}

// DeleteCampaign removes a campaign and its recipients. Deleting while a
// send is in flight is allowed; the remaining jobs find nothing to resolve.
func (s *CampaignService) DeleteCampaign(ctx context.Context, campaignID int) error {
	if err := s.CampaignRepo.Delete(ctx, campaignID); err != nil {
		return err
	}
	logger(s.Log).WithField("campaign_id", campaignID).Info("Campaign deleted")
	return nil
}

func normalizePage(page, pageSize, defaultSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

func pagination(page, pageSize, total int) map[string]int {
	return map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
}

func logger(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
