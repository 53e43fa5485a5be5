package repository

import (
	"context"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// ContactRepositoryInterface defines the contact operations used by services.
type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	GetByID(ctx context.Context, id int) (*model.Contact, error)
	List(ctx context.Context, offset, limit int) ([]*model.Contact, int, error)
	Delete(ctx context.Context, id int) error
	Count(ctx context.Context) (int, error)
}

type CampaignRepositoryInterface interface {
	// CreateWithRecipients inserts the campaign in draft and one pending
	// recipient per contact id in a single transaction. contactIDs must be
	// distinct. Unknown contacts fail with a validation error and nothing is
	// written.
	CreateWithRecipients(ctx context.Context, c *model.Campaign, contactIDs []int) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int) ([]*model.Campaign, int, error)
	Delete(ctx context.Context, id int) error
	Count(ctx context.Context) (int, error)

	// ListIDsByStatus returns the ids of campaigns in status, oldest first.
	ListIDsByStatus(ctx context.Context, status model.CampaignStatus) ([]int, error)

	// MarkSending moves a draft campaign to sending. Any other status yields
	// an invalid state error.
	MarkSending(ctx context.Context, id int) error

	GetCampaignStats(ctx context.Context, campaignID int) (model.StatusCounts, error)

	// FinalizeIfComplete moves a sending campaign with no pending recipients
	// to sent or failed. finalized is true only for the call that performed
	// the write; every other call returns the current status unchanged.
	FinalizeIfComplete(ctx context.Context, campaignID int) (status model.CampaignStatus, finalized bool, err error)
}

type RecipientRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Recipient, error)
	ListByCampaign(ctx context.Context, campaignID int) ([]*model.Recipient, error)
	ListPendingIDs(ctx context.Context, campaignID int) ([]int, error)

	// Resolve applies res only if the recipient is still pending. applied is
	// false when the recipient had already been resolved.
	Resolve(ctx context.Context, id int, res model.Resolution) (applied bool, err error)

	CountByStatus(ctx context.Context, status model.RecipientStatus) (int, error)
}
