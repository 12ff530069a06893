// Package anchor computes deterministic credential content hashes and anchors
// them to an external ledger so verifiers can detect tampering later.
package anchor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	id "dcp/pkg/domain"
)

// Snapshot is the fixed canonical field set a content hash covers. Anything
// outside these fields can change without invalidating an anchor.
type Snapshot struct {
	PublicID       id.PublicCredentialID
	Title          string
	RecipientName  string
	RecipientEmail string
	IssuerID       id.ActorID
	OrganizationID id.OrgID
	IssuedAt       *time.Time
	ExpiresAt      *time.Time
}

// canonicalContent serializes with sorted keys and compact separators.
// Field declaration order is the sorted key order; absent timestamps encode
// as null, set ones as RFC 3339 UTC.
type canonicalContent struct {
	CredentialID   string  `json:"credential_id"`
	ExpiresAt      *string `json:"expires_at"`
	IssuedAt       *string `json:"issued_at"`
	IssuerID       string  `json:"issuer_id"`
	OrganizationID string  `json:"organization_id"`
	RecipientEmail string  `json:"recipient_email"`
	RecipientName  string  `json:"recipient_name"`
	Title          string  `json:"title"`
}

// ComputeHash returns the lowercase hex SHA-256 digest of the snapshot's
// canonical serialization. Pure function: identical snapshots always produce
// identical digests.
func ComputeHash(s Snapshot) string {
	c := canonicalContent{
		CredentialID:   string(s.PublicID),
		ExpiresAt:      formatTime(s.ExpiresAt),
		IssuedAt:       formatTime(s.IssuedAt),
		IssuerID:       s.IssuerID.String(),
		OrganizationID: s.OrganizationID.String(),
		RecipientEmail: s.RecipientEmail,
		RecipientName:  s.RecipientName,
		Title:          s.Title,
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode on a fixed struct cannot fail.
	_ = enc.Encode(c)
	payload := bytes.TrimRight(buf.Bytes(), "\n")
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}
