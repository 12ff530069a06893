package credential

import (
	"strings"
	"time"

	"dcp/internal/anchor"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/email"
)

type Status string

const (
	StatusDraft   Status = "draft"
	StatusIssued  Status = "issued"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// Credential is the central aggregate. Status moves along a fixed DAG:
// Draft to Issued, Issued to Revoked, and any non-revoked status reads as
// Expired once the expiry passes. Credentials are never hard-deleted.
//
// Invariants:
//   - IssuedAt is set exactly once, at the Draft to Issued transition.
//   - RevokedAt and RevocationReason are set only on revocation and are
//     immutable afterward.
//   - Editing a canonical content field after issuance clears ContentHash
//     and AnchorTxRef; the stale anchor must not survive the edit.
type Credential struct {
	ID               id.CredentialID       `json:"id"`
	PublicID         id.PublicCredentialID `json:"public_id"`
	Title            string                `json:"title"`
	Description      string                `json:"description,omitempty"`
	OrgID            id.OrgID              `json:"organization_id"`
	TemplateID       id.TemplateID         `json:"template_id"`
	IssuerID         id.ActorID            `json:"issuer_id"`
	RecipientID      id.ActorID            `json:"recipient_id"`
	RecipientName    string                `json:"recipient_name"`
	RecipientEmail   string                `json:"recipient_email"`
	CredentialData   map[string]any        `json:"credential_data,omitempty"`
	Status           Status                `json:"status"`
	Public           bool                  `json:"public"`
	VerificationURL  string                `json:"verification_url"`
	ContentHash      string                `json:"content_hash,omitempty"`
	AnchorTxRef      string                `json:"anchor_tx_ref,omitempty"`
	ArtifactURLs     []string              `json:"artifact_urls,omitempty"`
	IssuedAt         *time.Time            `json:"issued_at,omitempty"`
	ExpiresAt        *time.Time            `json:"expires_at,omitempty"`
	RevokedAt        *time.Time            `json:"revoked_at,omitempty"`
	RevocationReason string                `json:"revocation_reason,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// CreateParams carries everything a new draft needs. The recipient actor is
// resolved by the service before the aggregate is built.
type CreateParams struct {
	OrgID          id.OrgID
	TemplateID     id.TemplateID
	IssuerID       id.ActorID
	RecipientID    id.ActorID
	RecipientName  string
	RecipientEmail string
	Title          string
	Description    string
	CredentialData map[string]any
	ExpiresAt      *time.Time
	Public         bool
}

func NewCredential(credentialID id.CredentialID, p CreateParams, verifyBaseURL string, now time.Time) (*Credential, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential title cannot be empty")
	}
	p.RecipientEmail = email.Normalize(p.RecipientEmail)
	if !email.Valid(p.RecipientEmail) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "recipient email is invalid")
	}
	if p.OrgID.IsNil() || p.TemplateID.IsNil() || p.IssuerID.IsNil() || p.RecipientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential references cannot be empty")
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiry must be in the future")
	}
	publicID, err := id.NewPublicCredentialID(now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate public identifier")
	}
	return &Credential{
		ID:              credentialID,
		PublicID:        publicID,
		Title:           p.Title,
		Description:     strings.TrimSpace(p.Description),
		OrgID:           p.OrgID,
		TemplateID:      p.TemplateID,
		IssuerID:        p.IssuerID,
		RecipientID:     p.RecipientID,
		RecipientName:   strings.TrimSpace(p.RecipientName),
		RecipientEmail:  p.RecipientEmail,
		CredentialData:  p.CredentialData,
		Status:          StatusDraft,
		Public:          p.Public,
		VerificationURL: strings.TrimRight(verifyBaseURL, "/") + "/verify/" + string(publicID),
		ExpiresAt:       p.ExpiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// EffectiveStatus derives the status as of now. Revocation always wins; a
// passed expiry overrides everything else, Issued included.
func (c *Credential) EffectiveStatus(now time.Time) Status {
	if c.Status == StatusRevoked {
		return StatusRevoked
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return StatusExpired
	}
	return c.Status
}

func (c *Credential) CanIssue() error {
	if c.Status != StatusDraft {
		return dErrors.New(dErrors.CodeConflict, "only draft credentials can be issued")
	}
	return nil
}

func (c *Credential) ApplyIssue(now time.Time) error {
	if err := c.CanIssue(); err != nil {
		return err
	}
	c.Status = StatusIssued
	issuedAt := now
	c.IssuedAt = &issuedAt
	c.UpdatedAt = now
	return nil
}

func (c *Credential) CanRevoke() error {
	if c.Status == StatusRevoked {
		return dErrors.New(dErrors.CodeConflict, "credential is already revoked")
	}
	if c.Status != StatusIssued {
		return dErrors.New(dErrors.CodeConflict, "only issued credentials can be revoked")
	}
	return nil
}

func (c *Credential) ApplyRevoke(reason string, now time.Time) error {
	if err := c.CanRevoke(); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "revocation reason is required")
	}
	c.Status = StatusRevoked
	revokedAt := now
	c.RevokedAt = &revokedAt
	c.RevocationReason = reason
	c.UpdatedAt = now
	return nil
}

// UpdateParams uses pointers so absent fields stay untouched.
type UpdateParams struct {
	Title          *string
	Description    *string
	RecipientName  *string
	RecipientEmail *string
	CredentialData map[string]any
	ExpiresAt      *time.Time
	ClearExpiry    bool
	Public         *bool
}

// touchesCanonical reports whether the update changes a field covered by the
// content hash.
func (p UpdateParams) touchesCanonical() bool {
	return p.Title != nil || p.RecipientName != nil || p.RecipientEmail != nil ||
		p.ExpiresAt != nil || p.ClearExpiry
}

// restrictedOnly reports whether the update stays within the fields editable
// after issuance.
func (p UpdateParams) restrictedOnly() bool {
	return p.RecipientName == nil && p.RecipientEmail == nil &&
		p.CredentialData == nil && p.ExpiresAt == nil && !p.ClearExpiry
}

// ApplyUpdate edits the credential under the lifecycle's field rules.
// Drafts accept any edit. Issued credentials accept only title, description
// and the public flag; a title edit invalidates any existing anchor.
// Revoked credentials are immutable.
func (c *Credential) ApplyUpdate(p UpdateParams, now time.Time) error {
	switch c.Status {
	case StatusDraft:
	case StatusIssued:
		if !p.restrictedOnly() {
			return dErrors.New(dErrors.CodeConflict, "only title, description and visibility can change after issuance")
		}
	default:
		return dErrors.New(dErrors.CodeConflict, "revoked credentials cannot be edited")
	}

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return dErrors.New(dErrors.CodeValidation, "credential title cannot be empty")
		}
		c.Title = title
	}
	if p.Description != nil {
		c.Description = strings.TrimSpace(*p.Description)
	}
	if p.RecipientName != nil {
		c.RecipientName = strings.TrimSpace(*p.RecipientName)
	}
	if p.RecipientEmail != nil {
		address := email.Normalize(*p.RecipientEmail)
		if !email.Valid(address) {
			return dErrors.New(dErrors.CodeValidation, "recipient email is invalid")
		}
		c.RecipientEmail = address
	}
	if p.CredentialData != nil {
		c.CredentialData = p.CredentialData
	}
	if p.ClearExpiry {
		c.ExpiresAt = nil
	} else if p.ExpiresAt != nil {
		if !p.ExpiresAt.After(now) {
			return dErrors.New(dErrors.CodeValidation, "expiry must be in the future")
		}
		expiry := *p.ExpiresAt
		c.ExpiresAt = &expiry
	}
	if p.Public != nil {
		c.Public = *p.Public
	}

	if c.Status == StatusIssued && p.touchesCanonical() && c.ContentHash != "" {
		c.ContentHash = ""
		c.AnchorTxRef = ""
	}
	c.UpdatedAt = now
	return nil
}

// ContentSnapshot is the canonical field set the content hash covers.
func (c *Credential) ContentSnapshot() anchor.Snapshot {
	return anchor.Snapshot{
		PublicID:       c.PublicID,
		Title:          c.Title,
		RecipientName:  c.RecipientName,
		RecipientEmail: c.RecipientEmail,
		IssuerID:       c.IssuerID,
		OrganizationID: c.OrgID,
		IssuedAt:       c.IssuedAt,
		ExpiresAt:      c.ExpiresAt,
	}
}
