package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	dErrors "dcp/pkg/domain-errors"
)

// PublicCredentialID is the unguessable, externally shareable credential
// reference, distinct from the internal storage key.
// Format: DCP-YYYYMMDD-XXXXXXXX where X is an uppercase hex digit.
type PublicCredentialID string

var publicIDPattern = regexp.MustCompile(`^DCP-\d{8}-[0-9A-F]{8}$`)

// NewPublicCredentialID generates a fresh public identifier for the given
// issuance date. The random suffix comes from crypto/rand; collisions are
// guarded by the store's uniqueness constraint.
func NewPublicCredentialID(now time.Time) (PublicCredentialID, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate credential ID: %w", err)
	}
	suffix := strings.ToUpper(hex.EncodeToString(buf))
	return PublicCredentialID(fmt.Sprintf("DCP-%s-%s", now.Format("20060102"), suffix)), nil
}

// ParsePublicCredentialID validates an externally supplied identifier.
func ParsePublicCredentialID(s string) (PublicCredentialID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential ID cannot be empty")
	}
	if !publicIDPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid credential ID format")
	}
	return PublicCredentialID(s), nil
}

func (id PublicCredentialID) String() string { return string(id) }

func (id PublicCredentialID) IsZero() bool { return id == "" }
