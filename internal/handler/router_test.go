package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailcampaign-backend/internal/controller"
	"github.com/unclebandit/mailcampaign-backend/internal/handler"
	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/queue"
	"github.com/unclebandit/mailcampaign-backend/internal/repository/memory"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

type server struct {
	*httptest.Server
	queue   *queue.InMemoryQueue
	metrics *metrics.Metrics
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := memory.NewStore()
	q := queue.NewInMemoryQueue(log)

	agg := &service.StatusAggregator{CampaignRepo: store.Campaigns(), Metrics: m, Log: log}
	sim := service.NewDeliverySimulator(store.Recipients(), agg)
	sim.SuccessRate = 1
	sim.MinDelay, sim.MaxDelay = 0, 0
	sim.Metrics = m
	sim.Log = log
	if err := service.StartDeliverySubscriber(q, queue.TopicCampaignSends, sim); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	router := handler.NewRouter(handler.Controllers{
		Campaigns: &controller.CampaignController{
			CampaignService: &service.CampaignService{
				CampaignRepo:  store.Campaigns(),
				RecipientRepo: store.Recipients(),
				Log:           log,
			},
			Dispatcher: &service.Dispatcher{
				CampaignRepo:  store.Campaigns(),
				RecipientRepo: store.Recipients(),
				Queue:         q,
				Aggregator:    agg,
				Metrics:       m,
				Log:           log,
			},
			Log: log,
		},
		Contacts: &controller.ContactController{
			ContactService: &service.ContactService{ContactRepo: store.Contacts(), Log: log},
			Log:            log,
		},
		Dashboard: &controller.DashboardController{
			DashboardService: &service.DashboardService{
				ContactRepo:   store.Contacts(),
				CampaignRepo:  store.Campaigns(),
				RecipientRepo: store.Recipients(),
			},
			Log: log,
		},
	}, m, reg, log)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &server{Server: srv, queue: q, metrics: m}
}

func (s *server) do(t *testing.T, method, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, s.URL+path, rd)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)

	var ids []int
	for i := 0; i < 3; i++ {
		var c model.Contact
		resp := s.do(t, "POST", "/contacts", map[string]string{
			"name":  fmt.Sprintf("Contact %d", i),
			"email": fmt.Sprintf("contact%d@example.com", i),
		}, &c)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create contact: %d", resp.StatusCode)
		}
		ids = append(ids, c.ID)
	}

	var campaign model.Campaign
	resp := s.do(t, "POST", "/campaigns", map[string]interface{}{
		"subject":     "Hello",
		"body":        "World",
		"contact_ids": ids,
	}, &campaign)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create campaign: %d", resp.StatusCode)
	}

	path := fmt.Sprintf("/campaigns/%d", campaign.ID)
	if resp := s.do(t, "POST", path+"/send", nil, nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("send: %d", resp.StatusCode)
	}
	s.queue.Wait()

	var details service.CampaignDetails
	s.do(t, "GET", path, nil, &details)
	if details.Status != model.CampaignSent {
		t.Errorf("expected sent, got %s", details.Status)
	}
	want := model.CampaignStats{Total: 3, Sent: 3, SuccessRate: 100}
	if details.Stats != want {
		t.Errorf("expected %+v, got %+v", want, details.Stats)
	}

	if resp := s.do(t, "POST", path+"/send", nil, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 on resend, got %d", resp.StatusCode)
	}

	var dash model.DashboardStats
	s.do(t, "GET", "/dashboard", nil, &dash)
	if dash != (model.DashboardStats{TotalContacts: 3, TotalCampaigns: 1, EmailsSent: 3}) {
		t.Errorf("unexpected dashboard %+v", dash)
	}

	sent := testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("POST", "/campaigns/{id}/send", "202"))
	if sent != 1 {
		t.Errorf("expected one accepted send counted by route pattern, got %v", sent)
	}
}

func TestHealthzAndRequestID(t *testing.T) {
	s := newServer(t)

	resp := s.do(t, "GET", "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	req, _ := http.NewRequest("GET", s.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected caller request id echoed, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	s.do(t, "GET", "/healthz", nil, nil)

	resp, err := http.Get(s.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `http_requests_total{method="GET",path="/healthz",status="200"} 1`) {
		t.Errorf("expected healthz request in metrics output, got:\n%s", body)
	}
}

func TestUnknownCampaignReturns404(t *testing.T) {
	s := newServer(t)
	var res map[string]interface{}
	resp := s.do(t, "GET", "/campaigns/42", nil, &res)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if res["error"] == nil {
		t.Errorf("expected an error message, got %v", res)
	}
}

func TestListingHugePageNumber(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{
		"/campaigns?page=92233720368547760&page_size=100",
		"/contacts?page=92233720368547760&page_size=100",
	} {
		var res struct {
			Data []interface{} `json:"data"`
		}
		resp := s.do(t, "GET", path, nil, &res)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
		if len(res.Data) != 0 {
			t.Errorf("GET %s: expected empty data, got %v", path, res.Data)
		}
	}
}
