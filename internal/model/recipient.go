// internal/model/recipient.go
package model

import "time"

// Recipient tracks delivery of one campaign to one contact.
type Recipient struct {
	ID           int             `db:"id" json:"id"`
	CampaignID   int             `db:"campaign_id" json:"campaign_id"`
	ContactID    int             `db:"contact_id" json:"contact_id"`
	Status       RecipientStatus `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	SentAt       *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`

	// Contact is populated by detail queries only.
	Contact *Contact `db:"-" json:"contact,omitempty"`
}

// Resolution is the single terminal write applied to a pending recipient.
type Resolution struct {
	Status       RecipientStatus
	ErrorMessage string
	SentAt       *time.Time
}

// DeliveryJob is what the dispatcher schedules for each pending recipient.
type DeliveryJob struct {
	RecipientID int `json:"recipient_id"`
	CampaignID  int `json:"campaign_id"`
}
