package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

func TestRecomputeLeavesDraftAlone(t *testing.T) {
	f := newFixture(t, 1)
	c := f.newCampaign(t, f.seedContacts(t, 1))

	res, err := f.aggregator.Recompute(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if res.Finalized || res.Status != model.CampaignDraft {
		t.Errorf("expected untouched draft, got %+v", res)
	}
}

func TestRecomputeWaitsForPendingRecipients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	campaignID, ids := sendingCampaign(t, f, 2)

	if _, err := f.store.Recipients().Resolve(ctx, ids[0], model.Resolution{Status: model.RecipientFailed, ErrorMessage: "x"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	res, err := f.aggregator.Recompute(ctx, campaignID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if res.Finalized || res.Status != model.CampaignSending {
		t.Errorf("expected still sending, got %+v", res)
	}
}

func TestRecomputeFinalizesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	campaignID, ids := sendingCampaign(t, f, 20)

	for i, id := range ids {
		res := model.Resolution{Status: model.RecipientSent}
		if i == 7 {
			res = model.Resolution{Status: model.RecipientFailed, ErrorMessage: "bounced"}
		}
		if _, err := f.store.Recipients().Resolve(ctx, id, res); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}

	var (
		wg        sync.WaitGroup
		finalized atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.aggregator.Recompute(ctx, campaignID)
			if err != nil {
				t.Errorf("recompute: %v", err)
				return
			}
			if res.Status != model.CampaignFailed {
				t.Errorf("expected failed, got %s", res.Status)
			}
			if res.Finalized {
				finalized.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := finalized.Load(); n != 1 {
		t.Errorf("expected one finalizing call, got %d", n)
	}
	if n := f.finalized.Load(); n != 1 {
		t.Errorf("expected hook to run once, got %d", n)
	}
	if got := testutil.ToFloat64(f.metrics.FinalizationsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected one failed finalization counted, got %v", got)
	}
}
