// Package verification answers "is this credential currently valid" and
// keeps an append-only audit trail of every attempt.
package verification

import (
	"time"

	"github.com/mssola/useragent"

	id "dcp/pkg/domain"
)

// Outcome is the trust decision for one verification attempt.
type Outcome string

const (
	OutcomeValid   Outcome = "valid"
	OutcomeInvalid Outcome = "invalid"
	OutcomeRevoked Outcome = "revoked"
	OutcomeExpired Outcome = "expired"
)

// Method records how the verifier reached us.
type Method string

const (
	MethodQR  Method = "qr_code"
	MethodURL Method = "url"
	MethodAPI Method = "api"
)

func (m Method) Valid() bool {
	switch m {
	case MethodQR, MethodURL, MethodAPI:
		return true
	}
	return false
}

// Context carries the caller metadata recorded with each attempt. The user
// agent string is parsed for reporting but stored raw as well.
type Context struct {
	Method    Method
	ClientIP  string
	UserAgent string
}

// Record is one row of the append-only verification audit trail.
type Record struct {
	ID           id.VerificationID     `json:"id"`
	CredentialID *id.CredentialID      `json:"credential_id,omitempty"`
	PublicID     id.PublicCredentialID `json:"public_id"`
	Outcome      Outcome               `json:"outcome"`
	Method       Method                `json:"method"`
	ClientIP     string                `json:"client_ip,omitempty"`
	UserAgent    string                `json:"user_agent,omitempty"`
	Browser      string                `json:"browser,omitempty"`
	Platform     string                `json:"platform,omitempty"`
	// AnchorCheckSkipped flags results decided from lifecycle alone because
	// the ledger was unreachable.
	AnchorCheckSkipped bool      `json:"anchor_check_skipped,omitempty"`
	VerifiedAt         time.Time `json:"verified_at"`
}

// Result is what a verifier receives: the outcome plus enough detail to
// display, never anything that mutates the credential.
type Result struct {
	Outcome            Outcome               `json:"outcome"`
	PublicID           id.PublicCredentialID `json:"public_id"`
	Title              string                `json:"title,omitempty"`
	RecipientName      string                `json:"recipient_name,omitempty"`
	IssuedAt           *time.Time            `json:"issued_at,omitempty"`
	ExpiresAt          *time.Time            `json:"expires_at,omitempty"`
	RevocationReason   string                `json:"revocation_reason,omitempty"`
	ContentHash        string                `json:"content_hash,omitempty"`
	AnchorTxRef        string                `json:"anchor_tx_ref,omitempty"`
	AnchorMatched      *bool                 `json:"anchor_matched,omitempty"`
	AnchorCheckSkipped bool                  `json:"anchor_check_skipped,omitempty"`
	VerifiedAt         time.Time             `json:"verified_at"`
}

// parseAgent extracts browser and platform names from a raw user agent
// string. Unparseable strings leave both empty.
func parseAgent(raw string) (browser, platform string) {
	if raw == "" {
		return "", ""
	}
	ua := useragent.New(raw)
	browser, _ = ua.Browser()
	platform = ua.OS()
	return browser, platform
}
