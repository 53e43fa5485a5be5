// internal/controller/campaign_controller.go
package controller

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Dispatcher      *service.Dispatcher
	Log             logrus.FieldLogger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject    string `json:"subject"`
		Body       string `json:"body"`
		ContactIDs []int  `json:"contact_ids"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body.Subject, body.Body, body.ContactIDs)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetCampaignDetails returns the campaign with its recipients and stats.
func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "campaign")
	if !ok {
		return
	}

	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) GetCampaignStats(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "campaign")
	if !ok {
		return
	}

	stats, err := c.CampaignService.Stats(r.Context(), id)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SendCampaign answers as soon as the deliveries are scheduled.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "campaign")
	if !ok {
		return
	}

	result, err := c.Dispatcher.SendCampaign(r.Context(), id)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "campaign")
	if !ok {
		return
	}

	if err := c.CampaignService.DeleteCampaign(r.Context(), id); err != nil {
		writeError(w, c.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
