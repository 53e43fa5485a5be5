// internal/handler/router.go
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailcampaign-backend/internal/controller"
	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
)

// Controllers are the HTTP endpoints the router exposes.
type Controllers struct {
	Campaigns *controller.CampaignController
	Contacts  *controller.ContactController
	Dashboard *controller.DashboardController
}

// NewRouter mounts the JSON API plus /healthz and /metrics. gatherer is what
// /metrics serves; nil means the default registry.
func NewRouter(c Controllers, m *metrics.Metrics, gatherer prometheus.Gatherer, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(Metrics(m))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/dashboard", c.Dashboard.GetDashboard)

	r.Route("/contacts", func(r chi.Router) {
		r.Post("/", c.Contacts.CreateContact)
		r.Get("/", c.Contacts.ListContacts)
		r.Get("/{id}", c.Contacts.GetContact)
		r.Delete("/{id}", c.Contacts.DeleteContact)
	})

	// Campaign routes
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", c.Campaigns.CreateCampaign)
		r.Get("/", c.Campaigns.ListCampaigns)
		r.Get("/{id}", c.Campaigns.GetCampaignDetails)
		r.Get("/{id}/stats", c.Campaigns.GetCampaignStats)
		r.Post("/{id}/send", c.Campaigns.SendCampaign)
		r.Delete("/{id}", c.Campaigns.DeleteCampaign)
	})

	return r
}
