package template

import (
	"encoding/json"
	"strings"
	"time"

	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// Template is a reusable credential design owned by one organization.
// The design payload is opaque here; rendering happens elsewhere.
// Invariant: credentials may only be issued against a non-archived template.
type Template struct {
	ID        id.TemplateID   `json:"id"`
	OrgID     id.OrgID        `json:"organization_id"`
	Name      string          `json:"name"`
	Design    json.RawMessage `json:"design,omitempty"`
	Status    Status          `json:"status"`
	CreatedBy id.ActorID      `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func NewTemplate(templateID id.TemplateID, orgID id.OrgID, name string, design json.RawMessage, createdBy id.ActorID, now time.Time) (*Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "template name cannot be empty")
	}
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "template must belong to an organization")
	}
	return &Template{
		ID:        templateID,
		OrgID:     orgID,
		Name:      name,
		Design:    design,
		Status:    StatusDraft,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Issuable reports whether credentials may be created against the template.
func (t *Template) Issuable() bool {
	return t.Status != StatusArchived
}

func (t *Template) CanActivate() error {
	if t.Status != StatusDraft {
		return dErrors.New(dErrors.CodeConflict, "only draft templates can be activated")
	}
	return nil
}

func (t *Template) ApplyActivate(now time.Time) error {
	if err := t.CanActivate(); err != nil {
		return err
	}
	t.Status = StatusActive
	t.UpdatedAt = now
	return nil
}

func (t *Template) CanArchive() error {
	if t.Status == StatusArchived {
		return dErrors.New(dErrors.CodeConflict, "template is already archived")
	}
	return nil
}

func (t *Template) ApplyArchive(now time.Time) error {
	if err := t.CanArchive(); err != nil {
		return err
	}
	t.Status = StatusArchived
	t.UpdatedAt = now
	return nil
}
