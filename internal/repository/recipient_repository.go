package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

type RecipientRepository struct {
	DB *sql.DB
}

func (r *RecipientRepository) GetByID(ctx context.Context, id int) (*model.Recipient, error) {
	query := `
        SELECT id, campaign_id, contact_id, status, error_message, sent_at, created_at, updated_at
        FROM campaign_recipients
        WHERE id = $1
    `
	var rec model.Recipient
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.CampaignID, &rec.ContactID, &rec.Status,
		&rec.ErrorMessage, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewRecipientNotFound(id)
		}
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return &rec, nil
}

// ListByCampaign returns recipients with their contact, ordered by contact name.
func (r *RecipientRepository) ListByCampaign(ctx context.Context, campaignID int) ([]*model.Recipient, error) {
	query := `
        SELECT cr.id, cr.campaign_id, cr.contact_id, cr.status, cr.error_message, cr.sent_at,
               cr.created_at, cr.updated_at, ct.name, ct.email, ct.created_at
        FROM campaign_recipients cr
        JOIN contacts ct ON ct.id = cr.contact_id
        WHERE cr.campaign_id = $1
        ORDER BY ct.name, cr.id
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	recipients := []*model.Recipient{}
	for rows.Next() {
		rec := &model.Recipient{Contact: &model.Contact{}}
		if err := rows.Scan(
			&rec.ID, &rec.CampaignID, &rec.ContactID, &rec.Status, &rec.ErrorMessage, &rec.SentAt,
			&rec.CreatedAt, &rec.UpdatedAt, &rec.Contact.Name, &rec.Contact.Email, &rec.Contact.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Contact.ID = rec.ContactID
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *RecipientRepository) ListPendingIDs(ctx context.Context, campaignID int) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id FROM campaign_recipients
        WHERE campaign_id = $1 AND status = $2
        ORDER BY id
    `, campaignID, model.RecipientPending)
	if err != nil {
		return nil, fmt.Errorf("list pending recipients: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RecipientRepository) Resolve(ctx context.Context, id int, res model.Resolution) (bool, error) {
	var errMsg sql.NullString
	if res.Status == model.RecipientFailed {
		errMsg = sql.NullString{String: res.ErrorMessage, Valid: true}
	}
	result, err := r.DB.ExecContext(ctx, `
        UPDATE campaign_recipients
        SET status = $1, error_message = $2, sent_at = $3, updated_at = NOW()
        WHERE id = $4 AND status = $5
    `, res.Status, errMsg, res.SentAt, id, model.RecipientPending)
	if err != nil {
		return false, fmt.Errorf("resolve recipient: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	// Distinguish "already resolved" from "does not exist".
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *RecipientRepository) CountByStatus(ctx context.Context, status model.RecipientStatus) (int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaign_recipients WHERE status = $1`, status).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return total, nil
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
