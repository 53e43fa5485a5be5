package service

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

const (
	maxNameLength          = 255
	defaultContactPageSize = 20
)

type ContactService struct {
	ContactRepo repository.ContactRepositoryInterface
	Log         logrus.FieldLogger
}

type CreateContactInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *ContactService) CreateContact(ctx context.Context, in CreateContactInput) (*model.Contact, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	verr := &appErrors.ValidationError{}
	switch {
	case name == "":
		verr.Add("name", "can't be blank")
	case utf8.RuneCountInString(name) > maxNameLength:
		verr.Add("name", "is too long (maximum is 255 characters)")
	}
	if email == "" {
		verr.Add("email", "can't be blank")
	} else if !validEmail(email) {
		verr.Add("email", "is invalid")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	c := &model.Contact{Name: name, Email: email}
	if err := s.ContactRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	logger(s.Log).WithField("contact_id", c.ID).Info("Contact created")
	return c, nil
}

// ListContacts returns contacts ordered by name.
func (s *ContactService) ListContacts(ctx context.Context, page, pageSize int) ([]model.Contact, map[string]int, error) {
	page, pageSize, offset := normalizePage(page, pageSize, defaultContactPageSize)

	ptrs, total, err := s.ContactRepo.List(ctx, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}
	contacts := make([]model.Contact, len(ptrs))
	for i, c := range ptrs {
		contacts[i] = *c
	}
	return contacts, pagination(page, pageSize, total), nil
}

func (s *ContactService) GetContact(ctx context.Context, id int) (*model.Contact, error) {
	return s.ContactRepo.GetByID(ctx, id)
}

// DeleteContact removes the contact along with its recipient records.
func (s *ContactService) DeleteContact(ctx context.Context, id int) error {
	if err := s.ContactRepo.Delete(ctx, id); err != nil {
		return err
	}
	logger(s.Log).WithField("contact_id", id).Info("Contact deleted")
	return nil
}

// validEmail accepts a bare address only, no display name.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at:], ".")
}
