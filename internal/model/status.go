// internal/model/status.go
package model

import (
	"database/sql/driver"
	"fmt"
)

// CampaignStatus is the lifecycle state of a campaign. The zero value is not a
// valid status.
type CampaignStatus uint8

const (
	CampaignDraft CampaignStatus = iota + 1
	CampaignSending
	CampaignSent
	CampaignFailed
)

var campaignStatusNames = map[CampaignStatus]string{
	CampaignDraft:   "draft",
	CampaignSending: "sending",
	CampaignSent:    "sent",
	CampaignFailed:  "failed",
}

func (s CampaignStatus) String() string {
	if name, ok := campaignStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CampaignStatus(%d)", uint8(s))
}

// ParseCampaignStatus maps the stored name back to a status.
func ParseCampaignStatus(name string) (CampaignStatus, error) {
	for s, n := range campaignStatusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown campaign status %q", name)
}

// IsTerminal reports whether no further transition is allowed.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignSent || s == CampaignFailed
}

// CanTransitionTo enforces draft -> sending -> {sent, failed}.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignDraft:
		return next == CampaignSending
	case CampaignSending:
		return next == CampaignSent || next == CampaignFailed
	}
	return false
}

func (s CampaignStatus) MarshalText() ([]byte, error) {
	if _, ok := campaignStatusNames[s]; !ok {
		return nil, fmt.Errorf("invalid campaign status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *CampaignStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseCampaignStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s CampaignStatus) Value() (driver.Value, error) {
	if _, ok := campaignStatusNames[s]; !ok {
		return nil, fmt.Errorf("invalid campaign status %d", uint8(s))
	}
	return s.String(), nil
}

func (s *CampaignStatus) Scan(src any) error {
	name, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan campaign status: %w", err)
	}
	return s.UnmarshalText([]byte(name))
}

// RecipientStatus is the delivery state of a single recipient.
type RecipientStatus uint8

const (
	RecipientPending RecipientStatus = iota + 1
	RecipientSent
	RecipientFailed
)

var recipientStatusNames = map[RecipientStatus]string{
	RecipientPending: "pending",
	RecipientSent:    "sent",
	RecipientFailed:  "failed",
}

func (s RecipientStatus) String() string {
	if name, ok := recipientStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RecipientStatus(%d)", uint8(s))
}

func ParseRecipientStatus(name string) (RecipientStatus, error) {
	for s, n := range recipientStatusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown recipient status %q", name)
}

// IsTerminal is true for sent and failed; both are final.
func (s RecipientStatus) IsTerminal() bool {
	return s == RecipientSent || s == RecipientFailed
}

func (s RecipientStatus) MarshalText() ([]byte, error) {
	if _, ok := recipientStatusNames[s]; !ok {
		return nil, fmt.Errorf("invalid recipient status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *RecipientStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseRecipientStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s RecipientStatus) Value() (driver.Value, error) {
	if _, ok := recipientStatusNames[s]; !ok {
		return nil, fmt.Errorf("invalid recipient status %d", uint8(s))
	}
	return s.String(), nil
}

func (s *RecipientStatus) Scan(src any) error {
	name, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan recipient status: %w", err)
	}
	return s.UnmarshalText([]byte(name))
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("null status")
	}
	return "", fmt.Errorf("unsupported type %T", src)
}
