// internal/model/campaign.go
package model

import (
	"math"
	"time"
)

type Campaign struct {
	ID        int            `db:"id" json:"id"`
	Subject   string         `db:"subject" json:"subject"`
	Body      string         `db:"body" json:"body"`
	Status    CampaignStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`

	// RecipientsCount is only filled by list queries.
	RecipientsCount int `db:"-" json:"recipients_count"`
}

// CampaignStats summarizes recipient outcomes for one campaign.
type CampaignStats struct {
	Total       int     `json:"total"`
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// StatusCounts is the raw per-status recipient tally of a campaign.
type StatusCounts struct {
	Pending int
	Sent    int
	Failed  int
}

func (c StatusCounts) Total() int {
	return c.Pending + c.Sent + c.Failed
}

// NewCampaignStats derives the stats view, rounding the success rate to two
// decimals.
func NewCampaignStats(c StatusCounts) CampaignStats {
	stats := CampaignStats{
		Total:   c.Total(),
		Sent:    c.Sent,
		Failed:  c.Failed,
		Pending: c.Pending,
	}
	if stats.Total > 0 {
		rate := float64(c.Sent) / float64(stats.Total) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	return stats
}

// DashboardStats are the global counters shown on the dashboard.
type DashboardStats struct {
	TotalContacts  int `json:"total_contacts"`
	TotalCampaigns int `json:"total_campaigns"`
	EmailsSent     int `json:"emails_sent"`
}
