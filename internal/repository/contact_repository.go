package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

const pgUniqueViolation = "23505"

// ContactRepository is the PostgreSQL implementation.
type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	query := `
        INSERT INTO contacts (name, email)
        VALUES ($1, $2)
        RETURNING id, created_at
    `
	err := r.DB.QueryRowContext(ctx, query, c.Name, c.Email).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return appErrors.NewValidation("email", "has already been taken")
		}
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id int) (*model.Contact, error) {
	query := `SELECT id, name, email, created_at FROM contacts WHERE id = $1`

	var c model.Contact
	if err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewContactNotFound(id)
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}

// List returns contacts ordered by name.
func (r *ContactRepository) List(ctx context.Context, offset, limit int) ([]*model.Contact, int, error) {
	query := `
        SELECT id, name, email, created_at
        FROM contacts
        ORDER BY name, id
        LIMIT $1 OFFSET $2
    `
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*model.Contact{}
	for rows.Next() {
		c := &model.Contact{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

// Delete removes the contact; its recipient rows go with it via ON DELETE CASCADE.
func (r *ContactRepository) Delete(ctx context.Context, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewContactNotFound(id)
	}
	return nil
}

func (r *ContactRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return total, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
