// Package vc renders issued credentials as W3C Verifiable Credential
// JSON-LD documents for export and interoperability.
package vc

import (
	"context"
	"log/slog"
	"time"

	"dcp/internal/credential"
	"dcp/internal/org"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
)

const credentialsContext = "https://www.w3.org/2018/credentials/v1"

// vocabContext maps the document's short names onto stable vocabularies.
func vocabContext() map[string]string {
	return map[string]string{
		"dcp":               "https://digitalcredentials.com/vocab#",
		"schema":            "https://schema.org/",
		"name":              "schema:name",
		"description":       "schema:description",
		"image":             "schema:image",
		"issuer":            "dcp:issuer",
		"recipient":         "dcp:recipient",
		"credentialSubject": "dcp:credentialSubject",
		"issuanceDate":      "dcp:issuanceDate",
		"expirationDate":    "dcp:expirationDate",
	}
}

// Issuer identifies the issuing organization inside the document.
type Issuer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Document is the exported JSON-LD credential. Field order follows the
// conventional VC layout so serialized documents read naturally.
type Document struct {
	Context           []any          `json:"@context"`
	Type              []string       `json:"type"`
	ID                string         `json:"id"`
	Issuer            Issuer         `json:"issuer"`
	IssuanceDate      string         `json:"issuanceDate"`
	ExpirationDate    string         `json:"expirationDate,omitempty"`
	CredentialSubject map[string]any `json:"credentialSubject"`
}

// OrgSource resolves the issuing organization for the issuer block.
type OrgSource interface {
	Get(ctx context.Context, orgID id.OrgID) (*org.Organization, error)
}

type Service struct {
	orgs    OrgSource
	baseURL string
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New builds the exporter. baseURL is the public site root used for the
// issuer's profile URL.
func New(orgs OrgSource, baseURL string, opts ...Option) *Service {
	s := &Service{orgs: orgs, baseURL: baseURL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export renders an issued credential as a Verifiable Credential document.
// Drafts have no issuance date and cannot be exported.
func (s *Service) Export(ctx context.Context, c *credential.Credential) (*Document, error) {
	if c == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "credential is required")
	}
	if c.Status == credential.StatusDraft || c.IssuedAt == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "only issued credentials can be exported")
	}

	issuingOrg, err := s.orgs.Get(ctx, c.OrgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve issuing organization")
	}

	subject := map[string]any{
		"id":    "urn:uuid:" + c.RecipientID.String(),
		"name":  c.RecipientName,
		"email": c.RecipientEmail,
		"achievement": map[string]any{
			"type":        "Achievement",
			"name":        c.Title,
			"description": c.Description,
		},
	}
	// Issuer-supplied attributes ride along in the subject. Reserved keys
	// stay ours.
	for k, v := range c.CredentialData {
		if _, reserved := subject[k]; reserved {
			continue
		}
		subject[k] = v
	}

	doc := &Document{
		Context: []any{credentialsContext, vocabContext()},
		Type:    []string{"VerifiableCredential", "DigitalCredential"},
		ID:      c.VerificationURL,
		Issuer: Issuer{
			ID:   "urn:uuid:" + issuingOrg.ID.String(),
			Name: issuingOrg.Name,
			URL:  s.baseURL + "/orgs/" + issuingOrg.Slug,
		},
		IssuanceDate:      c.IssuedAt.UTC().Format(time.RFC3339),
		CredentialSubject: subject,
	}
	if c.ExpiresAt != nil {
		doc.ExpirationDate = c.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if s.logger != nil {
		s.logger.DebugContext(ctx, "exported credential document", "public_id", c.PublicID)
	}
	return doc, nil
}
