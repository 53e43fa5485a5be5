package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) CreateWithRecipients(ctx context.Context, c *model.Campaign, contactIDs []int) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		// FOR SHARE keeps the contacts from being deleted until commit.
		rows, err := tx.QueryContext(ctx, `SELECT id FROM contacts WHERE id = ANY($1::int[]) FOR SHARE`, pq.Array(contactIDs))
		if err != nil {
			return fmt.Errorf("lookup contacts: %w", err)
		}
		found := make(map[int]bool, len(contactIDs))
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			found[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if missing := missingIDs(contactIDs, found); len(missing) > 0 {
			return appErrors.NewValidation("contact_ids", "unknown contacts: "+joinIDs(missing))
		}

		c.Status = model.CampaignDraft
		query := `
            INSERT INTO campaigns (subject, body, status)
            VALUES ($1, $2, $3)
            RETURNING id, created_at, updated_at
        `
		if err := tx.QueryRowContext(ctx, query, c.Subject, c.Body, c.Status).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return fmt.Errorf("insert campaign: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
            INSERT INTO campaign_recipients (campaign_id, contact_id, status)
            SELECT $1::int, unnest($2::int[]), $3::varchar
        `, c.ID, pq.Array(contactIDs), model.RecipientPending)
		if err != nil {
			return fmt.Errorf("insert recipients: %w", err)
		}
		c.RecipientsCount = len(contactIDs)
		return nil
	})
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `
        SELECT id, subject, body, status, created_at, updated_at
        FROM campaigns WHERE id = $1
    `
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Subject, &c.Body, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

// ListCampaigns returns newest campaigns first with their recipient counts.
func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int) ([]*model.Campaign, int, error) {
	query := `
        SELECT c.id, c.subject, c.body, c.status, c.created_at, c.updated_at,
               (SELECT COUNT(*) FROM campaign_recipients cr WHERE cr.campaign_id = c.id)
        FROM campaigns c
        ORDER BY c.created_at DESC, c.id DESC
        LIMIT $1 OFFSET $2
    `
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.Subject, &c.Body, &c.Status, &c.CreatedAt, &c.UpdatedAt, &c.RecipientsCount); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// Delete removes the campaign and its recipients in one transaction.
func (r *CampaignRepository) Delete(ctx context.Context, id int) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_recipients WHERE campaign_id = $1`, id); err != nil {
			return fmt.Errorf("delete recipients: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete campaign: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return appErrors.NewCampaignNotFound(id)
		}
		return nil
	})
}

func (r *CampaignRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return total, nil
}

func (r *CampaignRepository) ListIDsByStatus(ctx context.Context, status model.CampaignStatus) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM campaigns WHERE status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("list campaigns by status: %w", err)
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

// ====================== Delivery workflow ======================

func (r *CampaignRepository) MarkSending(ctx context.Context, id int) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE campaigns SET status = $1, updated_at = NOW()
        WHERE id = $2 AND status = $3
    `, model.CampaignSending, id, model.CampaignDraft)
	if err != nil {
		return fmt.Errorf("mark campaign sending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	c, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return appErrors.NewInvalidState(id, c.Status)
}

func (r *CampaignRepository) GetCampaignStats(ctx context.Context, campaignID int) (model.StatusCounts, error) {
	if _, err := r.GetByID(ctx, campaignID); err != nil {
		return model.StatusCounts{}, err
	}
	return countByStatus(ctx, r.DB, campaignID)
}

func (r *CampaignRepository) FinalizeIfComplete(ctx context.Context, campaignID int) (model.CampaignStatus, bool, error) {
	var (
		status    model.CampaignStatus
		finalized bool
	)
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		// The row lock serializes concurrent finalizers of the same campaign.
		err := tx.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = $1 FOR UPDATE`, campaignID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.NewCampaignNotFound(campaignID)
			}
			return fmt.Errorf("lock campaign: %w", err)
		}
		if status != model.CampaignSending {
			return nil
		}

		counts, err := countByStatus(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if counts.Pending > 0 {
			return nil
		}

		next := model.CampaignSent
		if counts.Failed > 0 {
			next = model.CampaignFailed
		}
		if _, err := tx.ExecContext(ctx, `UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`, next, campaignID); err != nil {
			return fmt.Errorf("finalize campaign: %w", err)
		}
		status, finalized = next, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return status, finalized, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func countByStatus(ctx context.Context, q queryer, campaignID int) (model.StatusCounts, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT status, COUNT(*) FROM campaign_recipients
        WHERE campaign_id = $1 GROUP BY status
    `, campaignID)
	if err != nil {
		return model.StatusCounts{}, fmt.Errorf("count recipients: %w", err)
	}
	defer rows.Close()

	var counts model.StatusCounts
	for rows.Next() {
		var (
			status model.RecipientStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return model.StatusCounts{}, err
		}
		switch status {
		case model.RecipientPending:
			counts.Pending = n
		case model.RecipientSent:
			counts.Sent = n
		case model.RecipientFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func missingIDs(ids []int, found map[int]bool) []int {
	var missing []int
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	sort.Ints(missing)
	return missing
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
