// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports bad caller input, keyed by field. The caller can
// fix and retry.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a message for field, keeping the first one reported.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// OrNil returns nil when no field failed, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func NewValidation(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// NotFoundError is returned when an operation targets a missing record.
type NotFoundError struct {
	Resource string
	ID       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

func NewNotFound(resource string, id int) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Helper constructors for the common resources.
func NewCampaignNotFound(id int) error  { return NewNotFound("campaign", id) }
func NewContactNotFound(id int) error   { return NewNotFound("contact", id) }
func NewRecipientNotFound(id int) error { return NewNotFound("recipient", id) }

// InvalidStateError is returned when a campaign is asked to send outside of
// draft.
type InvalidStateError struct {
	CampaignID int
	Status     fmt.Stringer
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("campaign %d has already been sent or is being sent (status %s)", e.CampaignID, e.Status)
}

func NewInvalidState(campaignID int, status fmt.Stringer) error {
	return &InvalidStateError{CampaignID: campaignID, Status: status}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}
