package controller

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

type ContactController struct {
	ContactService *service.ContactService
	Log            logrus.FieldLogger
}

func (c *ContactController) CreateContact(w http.ResponseWriter, r *http.Request) {
	var body service.CreateContactInput
	if !decodeBody(w, r, &body) {
		return
	}

	contact, err := c.ContactService.CreateContact(r.Context(), body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (c *ContactController) ListContacts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	contacts, pagination, err := c.ContactService.ListContacts(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       contacts,
		"pagination": pagination,
	})
}

func (c *ContactController) GetContact(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "contact")
	if !ok {
		return
	}

	contact, err := c.ContactService.GetContact(r.Context(), id)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (c *ContactController) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "contact")
	if !ok {
		return
	}

	if err := c.ContactService.DeleteContact(r.Context(), id); err != nil {
		writeError(w, c.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type DashboardController struct {
	DashboardService *service.DashboardService
	Log              logrus.FieldLogger
}

func (c *DashboardController) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := c.DashboardService.Dashboard(r.Context())
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
