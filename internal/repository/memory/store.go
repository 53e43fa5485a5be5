// Package memory holds an in-process store implementing the repository
// interfaces. A single mutex guards all tables, so every method is atomic in
// the same way a PostgreSQL transaction is.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

type Store struct {
	mu sync.Mutex

	contacts   map[int]model.Contact
	campaigns  map[int]model.Campaign
	recipients map[int]model.Recipient

	nextContactID   int
	nextCampaignID  int
	nextRecipientID int

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		contacts:   make(map[int]model.Contact),
		campaigns:  make(map[int]model.Campaign),
		recipients: make(map[int]model.Recipient),
		now:        time.Now,
	}
}

func (s *Store) Contacts() *ContactRepository     { return &ContactRepository{s: s} }
func (s *Store) Campaigns() *CampaignRepository   { return &CampaignRepository{s: s} }
func (s *Store) Recipients() *RecipientRepository { return &RecipientRepository{s: s} }

// ====================== Contacts ======================

type ContactRepository struct{ s *Store }

func (r *ContactRepository) Create(_ context.Context, c *model.Contact) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.contacts {
		if strings.EqualFold(existing.Email, c.Email) {
			return appErrors.NewValidation("email", "has already been taken")
		}
	}
	s.nextContactID++
	c.ID = s.nextContactID
	c.CreatedAt = s.now()
	s.contacts[c.ID] = *c
	return nil
}

func (r *ContactRepository) GetByID(_ context.Context, id int) (*model.Contact, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return nil, appErrors.NewContactNotFound(id)
	}
	return &c, nil
}

func (r *ContactRepository) List(_ context.Context, offset, limit int) ([]*model.Contact, int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*model.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		c := c
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].ID < all[j].ID
	})
	return page(all, offset, limit), len(all), nil
}

// Delete cascades to the contact's recipient rows like the SQL foreign key.
func (r *ContactRepository) Delete(_ context.Context, id int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[id]; !ok {
		return appErrors.NewContactNotFound(id)
	}
	delete(s.contacts, id)
	for rid, rec := range s.recipients {
		if rec.ContactID == id {
			delete(s.recipients, rid)
		}
	}
	return nil
}

func (r *ContactRepository) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.contacts), nil
}

// ====================== Campaigns ======================

type CampaignRepository struct{ s *Store }

func (r *CampaignRepository) CreateWithRecipients(_ context.Context, c *model.Campaign, contactIDs []int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []int
	for _, id := range contactIDs {
		if _, ok := s.contacts[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		parts := make([]string, len(missing))
		for i, id := range missing {
			parts[i] = strconv.Itoa(id)
		}
		return appErrors.NewValidation("contact_ids", "unknown contacts: "+strings.Join(parts, ", "))
	}

	now := s.now()
	s.nextCampaignID++
	c.ID = s.nextCampaignID
	c.Status = model.CampaignDraft
	c.CreatedAt = now
	c.UpdatedAt = now
	c.RecipientsCount = len(contactIDs)
	s.campaigns[c.ID] = *c

	for _, contactID := range contactIDs {
		s.nextRecipientID++
		s.recipients[s.nextRecipientID] = model.Recipient{
			ID:         s.nextRecipientID,
			CampaignID: c.ID,
			ContactID:  contactID,
			Status:     model.RecipientPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return nil
}

func (r *CampaignRepository) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(_ context.Context, offset, limit int) ([]*model.Campaign, int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*model.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		c := c
		c.RecipientsCount = s.countLocked(c.ID).Total()
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return page(all, offset, limit), len(all), nil
}

func (r *CampaignRepository) Delete(_ context.Context, id int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[id]; !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(s.campaigns, id)
	for rid, rec := range s.recipients {
		if rec.CampaignID == id {
			delete(s.recipients, rid)
		}
	}
	return nil
}

func (r *CampaignRepository) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.campaigns), nil
}

func (r *CampaignRepository) ListIDsByStatus(_ context.Context, status model.CampaignStatus) ([]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := []int{}
	for id, c := range r.s.campaigns {
		if c.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (r *CampaignRepository) MarkSending(_ context.Context, id int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	if !c.Status.CanTransitionTo(model.CampaignSending) {
		return appErrors.NewInvalidState(id, c.Status)
	}
	c.Status = model.CampaignSending
	c.UpdatedAt = s.now()
	s.campaigns[id] = c
	return nil
}

func (r *CampaignRepository) GetCampaignStats(_ context.Context, campaignID int) (model.StatusCounts, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[campaignID]; !ok {
		return model.StatusCounts{}, appErrors.NewCampaignNotFound(campaignID)
	}
	return s.countLocked(campaignID), nil
}

func (r *CampaignRepository) FinalizeIfComplete(_ context.Context, campaignID int) (model.CampaignStatus, bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[campaignID]
	if !ok {
		return 0, false, appErrors.NewCampaignNotFound(campaignID)
	}
	if c.Status != model.CampaignSending {
		return c.Status, false, nil
	}
	counts := s.countLocked(campaignID)
	if counts.Pending > 0 {
		return c.Status, false, nil
	}

	c.Status = model.CampaignSent
	if counts.Failed > 0 {
		c.Status = model.CampaignFailed
	}
	c.UpdatedAt = s.now()
	s.campaigns[campaignID] = c
	return c.Status, true, nil
}

func (s *Store) countLocked(campaignID int) model.StatusCounts {
	var counts model.StatusCounts
	for _, rec := range s.recipients {
		if rec.CampaignID != campaignID {
			continue
		}
		switch rec.Status {
		case model.RecipientPending:
			counts.Pending++
		case model.RecipientSent:
			counts.Sent++
		case model.RecipientFailed:
			counts.Failed++
		}
	}
	return counts
}

// ====================== Recipients ======================

type RecipientRepository struct{ s *Store }

func (r *RecipientRepository) GetByID(_ context.Context, id int) (*model.Recipient, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recipients[id]
	if !ok {
		return nil, appErrors.NewRecipientNotFound(id)
	}
	return &rec, nil
}

func (r *RecipientRepository) ListByCampaign(_ context.Context, campaignID int) ([]*model.Recipient, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.Recipient{}
	for _, rec := range s.recipients {
		if rec.CampaignID != campaignID {
			continue
		}
		rec := rec
		if contact, ok := s.contacts[rec.ContactID]; ok {
			rec.Contact = &contact
		}
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := contactName(out[i]), contactName(out[j])
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *RecipientRepository) ListPendingIDs(_ context.Context, campaignID int) ([]int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := []int{}
	for _, rec := range s.recipients {
		if rec.CampaignID == campaignID && rec.Status == model.RecipientPending {
			ids = append(ids, rec.ID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (r *RecipientRepository) Resolve(_ context.Context, id int, res model.Resolution) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recipients[id]
	if !ok {
		return false, appErrors.NewRecipientNotFound(id)
	}
	if rec.Status != model.RecipientPending {
		return false, nil
	}

	rec.Status = res.Status
	rec.SentAt = res.SentAt
	rec.ErrorMessage = nil
	if res.Status == model.RecipientFailed {
		msg := res.ErrorMessage
		rec.ErrorMessage = &msg
	}
	rec.UpdatedAt = s.now()
	s.recipients[id] = rec
	return true, nil
}

func (r *RecipientRepository) CountByStatus(_ context.Context, status model.RecipientStatus) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.recipients {
		if rec.Status == status {
			n++
		}
	}
	return n, nil
}

func contactName(r *model.Recipient) string {
	if r.Contact == nil {
		return ""
	}
	return r.Contact.Name
}

func page[T any](all []T, offset, limit int) []T {
	if offset < 0 || offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if limit < 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

var (
	_ repository.ContactRepositoryInterface   = (*ContactRepository)(nil)
	_ repository.CampaignRepositoryInterface  = (*CampaignRepository)(nil)
	_ repository.RecipientRepositoryInterface = (*RecipientRepository)(nil)
)
