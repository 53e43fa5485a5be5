package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/mailcampaign-backend/internal/db"
	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

// openTestDB connects to TEST_DATABASE_URL and applies the migrations. The
// test is skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := db.MigrateDSN(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conn.SetMaxOpenConns(20)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedPostgresCampaign(t *testing.T, conn *sql.DB, n int) (*model.Campaign, []int) {
	t.Helper()
	ctx := context.Background()
	contacts := &repository.ContactRepository{DB: conn}
	run := uuid.NewString()

	contactIDs := make([]int, 0, n)
	for i := 0; i < n; i++ {
		c := &model.Contact{Name: fmt.Sprintf("Contact %02d", i), Email: fmt.Sprintf("%s-%d@example.com", run, i)}
		if err := contacts.Create(ctx, c); err != nil {
			t.Fatalf("create contact: %v", err)
		}
		contactIDs = append(contactIDs, c.ID)
	}
	t.Cleanup(func() {
		for _, id := range contactIDs {
			_ = contacts.Delete(context.Background(), id)
		}
	})

	campaigns := &repository.CampaignRepository{DB: conn}
	c := &model.Campaign{Subject: "Spring sale", Body: "Everything is 20% off"}
	if err := campaigns.CreateWithRecipients(ctx, c, contactIDs); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	t.Cleanup(func() { _ = campaigns.Delete(context.Background(), c.ID) })
	return c, contactIDs
}

func TestPostgresConcurrentResolutionsFinalizeOnce(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	campaigns := &repository.CampaignRepository{DB: conn}
	recipients := &repository.RecipientRepository{DB: conn}

	c, _ := seedPostgresCampaign(t, conn, 50)
	if err := campaigns.MarkSending(ctx, c.ID); err != nil {
		t.Fatalf("mark sending: %v", err)
	}
	if err := campaigns.MarkSending(ctx, c.ID); !appErrors.IsInvalidState(err) {
		t.Fatalf("expected invalid state on second claim, got %v", err)
	}

	ids, err := recipients.ListPendingIDs(ctx, c.ID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(ids) != 50 {
		t.Fatalf("expected 50 pending recipients, got %d", len(ids))
	}

	var (
		wg        sync.WaitGroup
		finalized atomic.Int32
		errs      = make(chan error, len(ids))
	)
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			res := model.Resolution{Status: model.RecipientFailed, ErrorMessage: "random email delivery failure"}
			if i%10 != 0 {
				now := time.Now()
				res = model.Resolution{Status: model.RecipientSent, SentAt: &now}
			}
			if _, err := recipients.Resolve(ctx, id, res); err != nil {
				errs <- err
				return
			}
			_, done, err := campaigns.FinalizeIfComplete(ctx, c.ID)
			if err != nil {
				errs <- err
				return
			}
			if done {
				finalized.Add(1)
			}
		}(i, id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("worker: %v", err)
	}

	if got := finalized.Load(); got != 1 {
		t.Errorf("expected exactly one finalization, got %d", got)
	}
	got, err := campaigns.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if got.Status != model.CampaignFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}

	counts, err := campaigns.GetCampaignStats(ctx, c.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if counts.Sent != 45 || counts.Failed != 5 || counts.Pending != 0 {
		t.Errorf("expected 45 sent and 5 failed, got %+v", counts)
	}
}

func TestPostgresResolveOnlyOnce(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	recipients := &repository.RecipientRepository{DB: conn}

	c, _ := seedPostgresCampaign(t, conn, 1)
	ids, err := recipients.ListPendingIDs(ctx, c.ID)
	if err != nil || len(ids) != 1 {
		t.Fatalf("list pending: %v %v", ids, err)
	}

	now := time.Now()
	applied, err := recipients.Resolve(ctx, ids[0], model.Resolution{Status: model.RecipientSent, SentAt: &now})
	if err != nil || !applied {
		t.Fatalf("first resolve: applied=%v err=%v", applied, err)
	}
	applied, err = recipients.Resolve(ctx, ids[0], model.Resolution{Status: model.RecipientFailed, ErrorMessage: "late"})
	if err != nil || applied {
		t.Fatalf("second resolve: applied=%v err=%v", applied, err)
	}

	rec, err := recipients.GetByID(ctx, ids[0])
	if err != nil {
		t.Fatalf("get recipient: %v", err)
	}
	if rec.Status != model.RecipientSent || rec.SentAt == nil {
		t.Errorf("expected sent with sent_at, got %s %v", rec.Status, rec.SentAt)
	}

	if _, err := recipients.Resolve(ctx, 1<<30, model.Resolution{Status: model.RecipientSent, SentAt: &now}); !appErrors.IsNotFound(err) {
		t.Errorf("expected not found for unknown recipient, got %v", err)
	}
}
